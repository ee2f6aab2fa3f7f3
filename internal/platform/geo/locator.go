package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/services"
)

// DefaultTimeout bounds a single geolocation acquisition.
const DefaultTimeout = 15 * time.Second

// BoundedLocator limits how long the wrapped locator may take. Timeouts, cancellation and
// upstream failures all surface as services.ErrGeolocationUnavailable.
type BoundedLocator struct {
	next    services.Locator
	timeout time.Duration
}

var _ services.Locator = (*BoundedLocator)(nil)

// NewBoundedLocator wraps next with timeout, falling back to DefaultTimeout.
func NewBoundedLocator(next services.Locator, timeout time.Duration) *BoundedLocator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BoundedLocator{next: next, timeout: timeout}
}

func (l *BoundedLocator) Locate(ctx context.Context, address domain.Address) (domain.Coordinates, error) {
	if l == nil || l.next == nil {
		return domain.Coordinates{}, fmt.Errorf("%w: no locator configured", services.ErrGeolocationUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	type result struct {
		coords domain.Coordinates
		err    error
	}
	done := make(chan result, 1)
	go func() {
		coords, err := l.next.Locate(ctx, address)
		done <- result{coords: coords, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Coordinates{}, fmt.Errorf("%w: timed out after %s", services.ErrGeolocationUnavailable, l.timeout)
		}
		return domain.Coordinates{}, fmt.Errorf("%w: %v", services.ErrGeolocationUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, services.ErrGeolocationUnavailable) {
				return domain.Coordinates{}, res.err
			}
			return domain.Coordinates{}, fmt.Errorf("%w: %v", services.ErrGeolocationUnavailable, res.err)
		}
		return res.coords, nil
	}
}

// StaticLocator resolves every address to the same point. Useful when the storefront only
// delivers within one area or in tests.
type StaticLocator struct {
	Coordinates domain.Coordinates
}

func (l StaticLocator) Locate(context.Context, domain.Address) (domain.Coordinates, error) {
	return l.Coordinates, nil
}
