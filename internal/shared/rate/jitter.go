package rate

import (
	"context"
	"go.uber.org/ratelimit"
)

// Jitter turns a ratelimit.Limiter into a channel of ticks with a small burst buffer,
// so workers can select on it together with their context.
type Jitter struct {
	ch    chan struct{}
	l     ratelimit.Limiter
	limit int
}

func NewJitter(ctx context.Context, perSec int) *Jitter {
	if perSec < 1 {
		perSec = 1
	}
	burst := perSec / 10
	if burst < 1 {
		burst = 1
	}
	j := &Jitter{
		limit: perSec,
		ch:    make(chan struct{}, burst),
		l:     ratelimit.New(perSec, ratelimit.WithoutSlack),
	}
	go j.provider(ctx)
	return j
}

func (j *Jitter) provider(ctx context.Context) {
	defer close(j.ch)
	for {
		j.l.Take()
		select {
		case <-ctx.Done():
			return
		case j.ch <- struct{}{}:
		}
	}
}

func (j *Jitter) Limit() int {
	return j.limit
}

// Chan is closed once the context is done.
func (j *Jitter) Chan() <-chan struct{} {
	return j.ch
}
