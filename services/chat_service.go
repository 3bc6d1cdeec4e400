package services

import (
	"chat-pubsub/contract"
	"chat-pubsub/domain"
	"chat-pubsub/errors"
	"chat-pubsub/moderation"
	"chat-pubsub/repositories"
	"context"
	"fmt"
	"log/slog"
)

type IChatService interface {
	Identify(ctx context.Context, user domain.User) error
	Whoami(ctx context.Context) (domain.User, error)
	UserInfo(ctx context.Context, name string) (domain.User, error)
	Weather(ctx context.Context, city string) (string, error)
	Fact() string
	Join(ctx context.Context, channel string) error
	Leave(ctx context.Context, channel string) error
	Send(ctx context.Context, channel, body string) error
	Read(ctx context.Context, channel string, sink contract.EventSink) error
	Channels() []domain.Channel
}

// ChatService glues the subscription session, the stores and the
// per-process session state together.
type ChatService struct {
	log       *slog.Logger
	session   contract.ISession
	users     repositories.IUserRepository
	weather   repositories.IWeatherRepository
	state     *SessionState
	moderator *moderation.Moderator
	pickFact  FactPicker
}

// NewChatService builds the service. moderator may be nil.
func NewChatService(
	log *slog.Logger,
	session contract.ISession,
	users repositories.IUserRepository,
	weather repositories.IWeatherRepository,
	state *SessionState,
	moderator *moderation.Moderator,
) *ChatService {
	return &ChatService{
		log:       log,
		session:   session,
		users:     users,
		weather:   weather,
		state:     state,
		moderator: moderator,
	}
}

func (s *ChatService) WithFactPicker(pick FactPicker) *ChatService {
	s.pickFact = pick
	return s
}

// Identify stores the profile, replacing any previous one, and makes it
// the current identity.
func (s *ChatService) Identify(ctx context.Context, user domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if err := s.users.Save(ctx, user); err != nil {
		return err
	}
	s.state.SetUser(user.Name)
	s.log.Info("User identified", "user", user.Name)
	return nil
}

func (s *ChatService) Whoami(ctx context.Context) (domain.User, error) {
	name, ok := s.state.CurrentUser()
	if !ok {
		return domain.User{}, errors.ErrNotIdentified
	}
	user, err := s.users.Get(ctx, name)
	if errors.Is(err, errors.ErrNotFound) {
		return domain.User{}, fmt.Errorf("profile of %s: %w", name, err)
	}
	return user, err
}

func (s *ChatService) UserInfo(ctx context.Context, name string) (domain.User, error) {
	user, err := s.users.Get(ctx, name)
	if errors.Is(err, errors.ErrNotFound) {
		return domain.User{}, fmt.Errorf("no information found for %s: %w", name, err)
	}
	return user, err
}

func (s *ChatService) Weather(ctx context.Context, city string) (string, error) {
	report, err := s.weather.Get(ctx, city)
	if errors.Is(err, errors.ErrNotFound) {
		return "", fmt.Errorf("no weather data for %s: %w", city, err)
	}
	return report, err
}

func (s *ChatService) Fact() string {
	return RandomFact(s.pickFact)
}

func (s *ChatService) Join(ctx context.Context, channel string) error {
	ch, err := domain.NewChannel(channel)
	if err != nil {
		return err
	}
	return s.session.Subscribe(ctx, ch)
}

func (s *ChatService) Leave(ctx context.Context, channel string) error {
	ch, err := domain.NewChannel(channel)
	if err != nil {
		return err
	}
	return s.session.Unsubscribe(ctx, ch)
}

// Send publishes body as the current user. Nothing is published before
// Identify succeeded.
func (s *ChatService) Send(ctx context.Context, channel, body string) error {
	sender, ok := s.state.CurrentUser()
	if !ok {
		return errors.ErrNotIdentified
	}
	ch, err := domain.NewChannel(channel)
	if err != nil {
		return err
	}
	if s.moderator != nil {
		var hits int
		if body, hits = s.moderator.Censor(body); hits > 0 {
			s.log.Info("Outbound message censored", "channel", ch, "hits", hits)
		}
	}
	return s.session.Publish(ctx, ch, sender, body)
}

func (s *ChatService) Read(ctx context.Context, channel string, sink contract.EventSink) error {
	ch, err := domain.NewChannel(channel)
	if err != nil {
		return err
	}
	return s.session.Listen(ctx, ch, sink)
}

func (s *ChatService) Channels() []domain.Channel {
	return s.session.Channels()
}
