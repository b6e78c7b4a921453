package storage

import (
	"context"
	"encoding/json"
	"pipi/backend/internal/config"
	"pipi/backend/internal/models"

	"go.uber.org/zap"
)

// PublishActivityEvent публікує подію в Redis Pub/Sub. Без Redis подія
// відкидається.
func (s *Service) PublishActivityEvent(ctx context.Context, ev models.ActivityEvent) error {
	if s.Redis == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, config.ActivityEventsChannel, string(payload)).Err()
}

// SubscribeActivityEvents слухає канал подій, доки ctx не скасовано.
func (s *Service) SubscribeActivityEvents(ctx context.Context) (<-chan models.ActivityEvent, error) {
	pubsub := s.Redis.Subscribe(ctx, config.ActivityEventsChannel)
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan models.ActivityEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev models.ActivityEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.Logger.Warn("Error unmarshalling activity event", zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
