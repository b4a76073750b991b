package services

import (
	"context"

	"jokernotes/internal/domain/models"
)

// ChangePublisher announces committed writes to live subscribers
type ChangePublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// ChangeSubscriber delivers events addressed to a topic until cancel is called
type ChangeSubscriber interface {
	Subscribe(topic string) (events <-chan models.ChangeEvent, cancel func())
}
