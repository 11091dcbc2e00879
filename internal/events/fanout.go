package events

import (
	"context"
	"errors"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// Fanout publishes every event to each of its sinks. A failing sink does not
// stop the others; the errors are joined.
type Fanout struct {
	sinks []domain.EventPublisher
}

// NewFanout returns a Fanout over the non-nil sinks.
func NewFanout(sinks ...domain.EventPublisher) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish sends payload to every sink.
func (f *Fanout) Publish(ctx context.Context, channel string, payload []byte) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
