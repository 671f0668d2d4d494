package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const (
	LoginTopic  = "siwe.login"
	LogoutTopic = "siwe.logout"
)

// LoginEvent is published after a successful verify
type LoginEvent struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
	IsNew     bool   `json:"is_new"`
}

// LogoutEvent is published after a session is revoked
type LogoutEvent struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogin publishes a login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, address string, sessionID string, isNew bool) error {
	return p.publish(ctx, LoginTopic, LoginEvent{
		Address:   address,
		SessionID: sessionID,
		IsNew:     isNew,
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, sessionID string) error {
	return p.publish(ctx, LogoutTopic, LogoutEvent{
		Address:   address,
		SessionID: sessionID,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event; used when publishing is disabled
type NopPublisher struct{}

func (NopPublisher) PublishLogin(context.Context, string, string, bool) error { return nil }

func (NopPublisher) PublishLogout(context.Context, string, string) error { return nil }
