package resolve

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces successive batch requests at least interval apart. The first
// Wait returns immediately.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer builds a Pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next request may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
