package generation

import (
	"context"
	"time"
)

// LocalService compiles the report in-process without a model. Delay
// simulates a slow backend and is honoured with cancellation.
type LocalService struct {
	Delay time.Duration
}

// Submit starts compiling req.
func (s *LocalService) Submit(ctx context.Context, req Request) (Handle, error) {
	return startAsync(ctx, req.ReportID, func(ctx context.Context) (string, error) {
		if s.Delay > 0 {
			t := time.NewTimer(s.Delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-t.C:
			}
		}
		return Compose(req, ""), nil
	}), nil
}

// Cancel stops a submitted compile.
func (s *LocalService) Cancel(ctx context.Context, h Handle) error {
	return cancelAsync(h)
}
