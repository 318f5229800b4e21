package transport

import (
	"context"
	"errors"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/Borislavv/go-hotkv/protocol"
	"log/slog"
	"sync/atomic"
)

// Client issues commands over a Channel and degrades instead of failing when the
// channel does: a read becomes a miss, an invalidation is dropped after being
// logged, and every promotion of a batch reports TransportFailure. Only errors
// the caller caused, such as an invalid key, are returned.
type Client struct {
	ch     Channel
	logger *slog.Logger

	readFailures       atomic.Int64
	invalidateFailures atomic.Int64
	promoteFailures    atomic.Int64
}

func NewClient(ch Channel, logger *slog.Logger) *Client {
	return &Client{ch: ch, logger: logger}
}

func (c *Client) Read(ctx context.Context, req model.ReadRequest) (model.ReadResult, error) {
	resp, err := c.ch.Call(ctx, &protocol.Request{
		Command:         protocol.CmdRead,
		Tenant:          req.Tenant,
		Key:             req.Key,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err = c.settle(resp, err); err != nil {
		if callerFault(err) {
			return model.Miss(), err
		}
		c.readFailures.Add(1)
		c.logger.Debug("[transport] read degraded to miss", "tenant", req.Tenant, "err", err)
		return model.Miss(), nil
	}
	return resp.Read, nil
}

// Invalidate is best effort: a lost invalidation is logged and counted, never retried.
func (c *Client) Invalidate(ctx context.Context, tenant model.TenantID, key []byte) error {
	resp, err := c.ch.Call(ctx, &protocol.Request{Command: protocol.CmdInvalidate, Tenant: tenant, Key: key})
	if err = c.settle(resp, err); err != nil {
		if callerFault(err) {
			return err
		}
		c.invalidateFailures.Add(1)
		c.logger.Warn("[transport] invalidation lost", "tenant", tenant, "key", string(key), "err", err)
	}
	return nil
}

func (c *Client) BatchPromote(ctx context.Context, items []model.PromoteItem) []model.PromoteResult {
	resp, err := c.ch.Call(ctx, &protocol.Request{Command: protocol.CmdBatchPromote, Items: items})
	if err = c.settle(resp, err); err == nil && len(resp.Results) != len(items) {
		err = protocol.StatusProtocolViolation
	}
	if err == nil {
		for i := range resp.Results {
			resp.Results[i].Tenant, resp.Results[i].Key = items[i].Tenant, items[i].Key
		}
		return resp.Results
	}

	c.promoteFailures.Add(1)
	c.logger.Warn("[transport] promotion batch lost", "items", len(items), "err", err)
	out := make([]model.PromoteResult, len(items))
	for i, it := range items {
		out[i] = model.PromoteResult{Tenant: it.Tenant, Key: it.Key, Status: model.TransportFailure}
	}
	return out
}

// Failures returns the number of degraded reads, invalidations and promotion batches.
func (c *Client) Failures() (reads, invalidations, batches int64) {
	return c.readFailures.Load(), c.invalidateFailures.Load(), c.promoteFailures.Load()
}

func (c *Client) Close() error {
	return c.ch.Close()
}

func (c *Client) settle(resp *protocol.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusOK {
		return resp.Status
	}
	return nil
}

func callerFault(err error) bool {
	var s protocol.Status
	return errors.As(err, &s) && s.Category() == protocol.CategoryClient
}
