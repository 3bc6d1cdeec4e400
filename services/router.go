package services

import (
	"chat-pubsub/contract"
	"chat-pubsub/domain"
	"chat-pubsub/errors"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Prompter supplies the arguments a menu choice needs.
// AwaitStop blocks until the user asks to stop reading or ctx ends.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
	AwaitStop(ctx context.Context) error
}

// Presenter renders results. As an EventSink it receives channel
// messages while a read is in progress.
type Presenter interface {
	contract.EventSink
	Introduction()
	Menu(subscribed []domain.Channel)
	Notice(format string, args ...any)
	Failure(err error)
	Profile(title string, user domain.User)
}

// Router turns input lines into intents and runs them against the chat
// service. Only a broker connection failure escapes Handle.
type Router struct {
	log    *slog.Logger
	chat   IChatService
	state  *SessionState
	prompt Prompter
	out    Presenter
}

func NewRouter(log *slog.Logger, chat IChatService, state *SessionState, prompt Prompter, out Presenter) *Router {
	return &Router{log: log, chat: chat, state: state, prompt: prompt, out: out}
}

// Run is the menu loop. It returns nil when the user exits or input ends.
func (r *Router) Run(ctx context.Context) error {
	for {
		r.state.Introduce(r.out.Introduction)
		r.out.Menu(r.chat.Channels())

		line, err := r.prompt.Ask(ctx, "Enter your choice: ")
		if err == nil {
			err = r.Handle(ctx, line)
		}
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrExit), errors.Is(err, io.EOF):
			r.out.Notice("Goodbye!")
			return nil
		default:
			return err
		}
	}
}

// Handle runs one line. It returns errors.ErrExit for the exit choice,
// prompt errors as is, and wrapped errors.ErrBrokerConnection failures.
// Everything else is presented and swallowed.
func (r *Router) Handle(ctx context.Context, line string) error {
	intent := domain.ParseIntent(line)
	r.log.Debug("Dispatching", "intent", intent.Kind, "bang", intent.Bang)

	var err error
	switch intent.Kind {
	case domain.IntentIdentify:
		err = r.identify(ctx)
	case domain.IntentJoinChannel:
		err = r.join(ctx)
	case domain.IntentLeaveChannel:
		err = r.leave(ctx)
	case domain.IntentSendMessage:
		err = r.send(ctx)
	case domain.IntentUserInfo:
		err = r.userInfo(ctx)
	case domain.IntentReadChannel:
		err = r.read(ctx)
	case domain.IntentExit:
		return errors.ErrExit
	case domain.IntentBang:
		err = r.bang(ctx, intent)
	default:
		err = fmt.Errorf("%w, please try again", errors.ErrInvalidCommand)
	}
	return r.settle(err)
}

func (r *Router) settle(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrBrokerConnection),
		errors.Is(err, errors.ErrExit),
		errors.Is(err, io.EOF),
		errors.Is(err, context.Canceled):
		return err
	}
	r.out.Failure(err)
	return nil
}

func (r *Router) identify(ctx context.Context) error {
	answers, err := r.askAll(ctx, "Enter username: ", "Enter age: ", "Enter gender: ", "Enter location: ")
	if err != nil {
		return err
	}
	user := domain.User{Name: answers[0], Age: answers[1], Gender: answers[2], Location: answers[3]}
	if err = r.chat.Identify(ctx, user); err != nil {
		return err
	}
	r.out.Notice("The username has been stored!")
	return nil
}

func (r *Router) join(ctx context.Context) error {
	channel, err := r.prompt.Ask(ctx, "Which channel would you like to join?: ")
	if err != nil {
		return err
	}
	if err = r.chat.Join(ctx, channel); err != nil {
		return err
	}
	r.out.Notice("Subscribed to %s", strings.TrimSpace(channel))
	return nil
}

func (r *Router) leave(ctx context.Context) error {
	channel, err := r.prompt.Ask(ctx, "Which channel would you like to leave?: ")
	if err != nil {
		return err
	}
	if err = r.chat.Leave(ctx, channel); err != nil {
		return err
	}
	r.out.Notice("Unsubscribed from %s", strings.TrimSpace(channel))
	return nil
}

func (r *Router) send(ctx context.Context) error {
	answers, err := r.askAll(ctx, "Which channel would you like to send a message to?: ", "Enter your message: ")
	if err != nil {
		return err
	}
	return r.chat.Send(ctx, answers[0], answers[1])
}

func (r *Router) userInfo(ctx context.Context) error {
	name, err := r.prompt.Ask(ctx, "Enter username to get info about: ")
	if err != nil {
		return err
	}
	user, err := r.chat.UserInfo(ctx, strings.TrimSpace(name))
	if err != nil {
		return err
	}
	r.out.Profile("Info for "+user.Name, user)
	return nil
}

// read blocks on the channel until the user stops it. The listener and
// the stop watcher cancel each other.
func (r *Router) read(ctx context.Context) error {
	channel, err := r.prompt.Ask(ctx, "Which channel would you like to read messages from?: ")
	if err != nil {
		return err
	}
	channel = strings.TrimSpace(channel)
	r.out.Notice("Listening for messages on %s... (type exit to go back)", channel)

	g, gctx := errgroup.WithContext(ctx)
	listenCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return r.chat.Read(listenCtx, channel, r.out)
	})
	g.Go(func() error {
		defer stop()
		return r.prompt.AwaitStop(listenCtx)
	})
	if err = g.Wait(); err != nil {
		return err
	}
	r.out.Notice("Stopped listening on %s", channel)
	return nil
}

func (r *Router) bang(ctx context.Context, intent domain.Intent) error {
	switch intent.Bang {
	case domain.BangHelp:
		r.out.Notice("Use the following commands to interact with the chatbot:")
		r.out.Introduction()
	case domain.BangWeather:
		city := intent.Arg
		if !intent.HasArg() {
			answer, err := r.prompt.Ask(ctx, "Please enter a city name: ")
			if err != nil {
				return err
			}
			city = strings.TrimSpace(answer)
		}
		report, err := r.chat.Weather(ctx, city)
		if err != nil {
			return err
		}
		r.out.Notice("Weather in %s: %s", city, report)
	case domain.BangFact:
		r.out.Notice("Fact: %s", r.chat.Fact())
	case domain.BangWhoami:
		user, err := r.chat.Whoami(ctx)
		if err != nil {
			return err
		}
		r.out.Profile("User Info for "+user.Name, user)
	}
	return nil
}

func (r *Router) askAll(ctx context.Context, questions ...string) ([]string, error) {
	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		answer, err := r.prompt.Ask(ctx, q)
		if err != nil {
			return nil, err
		}
		answers = append(answers, strings.TrimSpace(answer))
	}
	return answers, nil
}
