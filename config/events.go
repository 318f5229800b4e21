package config

import "time"

type EventsCfg struct {
	// Buffer is the capacity of the dispatch queue between the data plane and subscribers.
	Buffer int `yaml:"buffer"`

	// SubscriberBuffer is the default per-subscriber channel capacity.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

type TransportCfg struct {
	// ControlEndpoint is where the daemon answers READ, INVALIDATE and BATCH_PROMOTE.
	// Example: "tcp://127.0.0.1:7401".
	ControlEndpoint string `yaml:"control_endpoint"`

	// EventsEndpoint is where asynchronous events are published.
	EventsEndpoint string `yaml:"events_endpoint"`

	// Timeout bounds every cross-boundary call.
	Timeout time.Duration `yaml:"timeout"`

	// MetricsAddr serves Prometheus metrics when set. Example: ":9401".
	MetricsAddr string `yaml:"metrics_addr"`
}

func (cfg *TransportCfg) Enabled() bool {
	return cfg != nil
}
