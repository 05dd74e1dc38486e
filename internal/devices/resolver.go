package devices

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/domain"
)

const DefaultAttempts = 3

type Resolver struct {
	src      Source
	attempts int
	logger   zerolog.Logger

	mu      sync.Mutex
	granted map[domain.DeviceKind]bool
}

func NewResolver(src Source, attempts int) *Resolver {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	return &Resolver{
		src:      src,
		attempts: attempts,
		logger:   log.With().Str("module", "devices").Logger(),
		granted:  make(map[domain.DeviceKind]bool),
	}
}

// Enumerate lists devices. While any of the required kinds still comes back without
// labels it asks for permission and tries again, up to the configured attempt count.
// The last listing is returned even if labels never showed up.
func (r *Resolver) Enumerate(ctx context.Context, required ...domain.DeviceKind) ([]Device, error) {
	var (
		devs []Device
		errs *multierror.Error
	)
	for attempt := 1; attempt <= r.attempts; attempt++ {
		got, err := r.src.Enumerate(ctx)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("enumerate attempt %d: %w", attempt, err))
		} else {
			devs = got
			missing := r.observe(devs, required)
			if len(missing) == 0 {
				return devs, nil
			}
			if attempt == r.attempts {
				break
			}
			r.logger.Debug().Int("attempt", attempt).Interface("kinds", missing).Msg("device labels withheld, requesting permission")
			if err := r.src.RequestPermission(ctx, missing...); err != nil {
				r.logger.Warn().Err(err).Msg("permission request")
			}
		}
		if err := ctx.Err(); err != nil {
			return devs, err
		}
	}
	if devs == nil && errs != nil {
		return nil, errs.ErrorOrNil()
	}
	return devs, nil
}

// observe records kinds whose labels are visible and returns the ones still withheld.
func (r *Resolver) observe(devs []Device, required []domain.DeviceKind) []domain.DeviceKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range devs {
		if d.Label != "" {
			r.granted[d.Kind] = true
		}
	}
	var missing []domain.DeviceKind
	for _, k := range required {
		if !r.granted[k] && len(OfKind(devs, k)) > 0 {
			missing = append(missing, k)
		}
	}
	return missing
}

// Resolve picks the device for kind: preferred, then communications, then default,
// then, only with allowAny, the first one of that kind.
func Resolve(devs []Device, kind domain.DeviceKind, preferred string, allowAny bool) (Device, bool) {
	candidates := OfKind(devs, kind)
	for _, id := range []string{preferred, CommunicationsID, DefaultID} {
		if id == "" {
			continue
		}
		for _, d := range candidates {
			if d.ID == id {
				return d, true
			}
		}
	}
	if allowAny && len(candidates) > 0 {
		return candidates[0], true
	}
	return Device{}, false
}

// Preferred enumerates and resolves in one step. A missing device is not an error.
func (r *Resolver) Preferred(ctx context.Context, kind domain.DeviceKind, preferred string, allowAny bool) (Device, bool, error) {
	devs, err := r.Enumerate(ctx, kind)
	if err != nil {
		return Device{}, false, err
	}
	d, ok := Resolve(devs, kind, preferred, allowAny)
	if !ok {
		r.logger.Debug().Str("kind", string(kind)).Str("preferred", preferred).Msg("no device")
	}
	return d, ok, nil
}
