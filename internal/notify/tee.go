package notify

import (
	"context"

	"github.com/chungtau/mti-gateway/internal/model"
)

type tee struct {
	primary Publisher
	sinks   []Publisher
}

// Tee publishes to every sink and then to primary. The first sink failure stops
// the publish and is returned as a *model.DeliveryError, so primary never sees
// an event the sinks did not record.
func Tee(primary Publisher, sinks ...Publisher) Publisher {
	if len(sinks) == 0 {
		return primary
	}
	return &tee{primary: primary, sinks: sinks}
}

func (t *tee) Publish(ctx context.Context, merchantID string, ev model.NotificationEvent) error {
	for _, s := range t.sinks {
		if err := s.Publish(ctx, merchantID, ev); err != nil {
			return &model.DeliveryError{MTI: ev.MTI, TransactionID: ev.TransactionID, Err: err}
		}
	}
	return t.primary.Publish(ctx, merchantID, ev)
}
