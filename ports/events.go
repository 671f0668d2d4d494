package ports

import "context"

//go:generate mockgen -source=events.go -destination=../mocks/events_mock.go -package=mocks EventPublisher

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogin(ctx context.Context, address string, sessionID string, isNew bool) error
	PublishLogout(ctx context.Context, address string, sessionID string) error
}
