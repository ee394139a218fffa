package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/carelink-solutions/carelink-auth/internal/domain"
	pkgkafka "github.com/carelink-solutions/carelink-auth/pkg/kafka"
	"github.com/carelink-solutions/carelink-auth/pkg/logger"
)

// Kafka topics for user domain events.
var (
	TopicUserRegistered  = pkgkafka.Topic("user", "registered")
	TopicUserUpdated     = pkgkafka.Topic("user", "updated")
	TopicUserDeleted     = pkgkafka.Topic("user", "deleted")
	TopicSessionsRevoked = pkgkafka.Topic("user", "sessions_revoked")
)

const (
	AggregateTypeUser = "user"
	SourceAuthService = "carelink-auth"
)

// UserData is the payload of user.registered and user.updated. It never
// carries the password hash or token version.
type UserData struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
}

// UserRefData is the payload of events that only name the user.
type UserRefData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Publisher emits user lifecycle events.
type Publisher interface {
	PublishUserRegistered(ctx context.Context, u *domain.User) error
	PublishUserUpdated(ctx context.Context, u *domain.User) error
	PublishUserDeleted(ctx context.Context, u *domain.User) error
	PublishSessionsRevoked(ctx context.Context, u *domain.User) error
}

// eventWriter is satisfied by *pkgkafka.Producer.
type eventWriter interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes user domain events to Kafka.
type Producer struct {
	writer eventWriter
	logger *slog.Logger
}

func NewProducer(writer eventWriter, logger *slog.Logger) *Producer {
	return &Producer{writer: writer, logger: logger}
}

func (p *Producer) PublishUserRegistered(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, "user.registered", u.ID, userData(u))
}

func (p *Producer) PublishUserUpdated(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicUserUpdated, "user.updated", u.ID, userData(u))
}

func (p *Producer) PublishUserDeleted(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicUserDeleted, "user.deleted", u.ID, UserRefData{ID: u.ID, Email: u.Email})
}

func (p *Producer) PublishSessionsRevoked(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicSessionsRevoked, "user.sessions_revoked", u.ID, UserRefData{ID: u.ID, Email: u.Email})
}

func (p *Producer) publish(ctx context.Context, topic, eventType, userID string, data any) error {
	ev, err := pkgkafka.NewEvent(eventType, userID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}

	if err := p.writer.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published user event",
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
	)
	return nil
}

func userData(u *domain.User) UserData {
	return UserData{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// Discard is the Publisher used when Kafka is disabled.
type Discard struct{}

func (Discard) PublishUserRegistered(context.Context, *domain.User) error  { return nil }
func (Discard) PublishUserUpdated(context.Context, *domain.User) error     { return nil }
func (Discard) PublishUserDeleted(context.Context, *domain.User) error     { return nil }
func (Discard) PublishSessionsRevoked(context.Context, *domain.User) error { return nil }
