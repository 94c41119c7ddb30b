// Package connector owns the lifecycle of one conversational session
// against the platform: credential validation, token upkeep, session
// open, turn forwarding and the queue of normalized bot messages the
// harness drains.
package connector

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/convobench/inbenta-relay-go/internal/config"
	apperrors "github.com/convobench/inbenta-relay-go/internal/errors"
	"github.com/convobench/inbenta-relay-go/internal/gate"
	"github.com/convobench/inbenta-relay-go/internal/inbenta"
	"github.com/convobench/inbenta-relay-go/internal/model"
)

// queueCapacity bounds the undelivered bot messages per session. A slow
// consumer loses the oldest-undelivered semantics anyway, so overflow
// drops the new message with a warning instead of blocking the turn.
const queueCapacity = 100

type Options struct {
	// TokenCache shares tokens across processes; nil keeps them local.
	TokenCache inbenta.TokenCache
	// HTTPClient overrides the transport, used by tests.
	HTTPClient *http.Client
}

// Connector adapts one harness session to a platform conversation. All
// outbound traffic funnels through a single admission gate shared by
// the token manager and the chat client.
type Connector struct {
	cfg    *config.Config
	tokens inbenta.TokenSource
	chat   *inbenta.ChatClient

	mu    sync.Mutex
	token *inbenta.Token
	conv  *inbenta.Conversation

	queue chan model.BotMessage
}

func New(cfg *config.Config, opts Options) *Connector {
	creds := inbenta.Credentials{
		APIKey:     cfg.APIKey,
		Secret:     cfg.Secret,
		APIVersion: cfg.APIVersion,
	}
	shared := gate.NewFIFO(cfg.GateConcurrency)

	tokens := inbenta.NewTokenManager(creds, inbenta.ScopeChatbot, inbenta.TokenManagerOptions{
		BaseURL:    cfg.AuthBaseURL,
		HTTPClient: opts.HTTPClient,
		Gate:       shared,
		Cache:      opts.TokenCache,
	})
	chat := inbenta.NewChatClient(inbenta.ChatClientConfig{
		Credentials: creds,
		Source:      cfg.Source,
		Environment: cfg.Environment,
		Lang:        cfg.Lang,
		Timezone:    cfg.Timezone,
		UserType:    cfg.UserType,
		UseVoting:   cfg.UseVoting,
		Gate:        shared,
		HTTPClient:  opts.HTTPClient,
	})

	return &Connector{
		cfg:    cfg,
		tokens: tokens,
		chat:   chat,
		queue:  make(chan model.BotMessage, queueCapacity),
	}
}

// Validate checks credentials before any network call.
func (c *Connector) Validate() error {
	if err := c.cfg.ValidateChat(); err != nil {
		return apperrors.Validation(err.Error())
	}
	return nil
}

// Start authenticates, opens the conversation and, unless configured
// otherwise, plays the welcome turn so its messages are already queued
// when the harness starts listening.
func (c *Connector) Start(ctx context.Context) error {
	if err := c.Validate(); err != nil {
		return err
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	conv, err := c.chat.OpenConversation(ctx, token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conv = conv
	c.mu.Unlock()

	log.Info().Str("session_id", conv.SessionID).Msg("conversation opened")

	if c.cfg.SkipWelcomeMessage {
		return nil
	}
	return c.dispatch(ctx, inbenta.WelcomeEvent{})
}

// UserSays forwards one harness turn and queues the normalized replies.
func (c *Connector) UserSays(ctx context.Context, msg model.UserMessage) error {
	return c.dispatch(ctx, inbenta.EventFromUserMessage(msg))
}

func (c *Connector) dispatch(ctx context.Context, event inbenta.OutboundEvent) error {
	c.mu.Lock()
	conv := c.conv
	c.mu.Unlock()
	if conv == nil {
		return apperrors.Session("no open conversation")
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	messages, err := c.chat.Send(ctx, token, conv, event)
	if err != nil {
		return err
	}
	for _, m := range messages {
		select {
		case c.queue <- m:
		default:
			log.Warn().
				Str("session_id", conv.SessionID).
				Msg("message queue full, dropping bot message")
		}
	}
	return nil
}

// Messages is the stream of normalized bot messages, in answer order.
func (c *Connector) Messages() <-chan model.BotMessage {
	return c.queue
}

// Drain returns all currently queued messages without blocking.
func (c *Connector) Drain() []model.BotMessage {
	var out []model.BotMessage
	for {
		select {
		case m := <-c.queue:
			out = append(out, m)
		default:
			return out
		}
	}
}

// Stop discards the conversation. The platform has no teardown call, so
// the session simply expires remotely.
func (c *Connector) Stop() {
	c.mu.Lock()
	c.conv = nil
	c.mu.Unlock()
}

// Clean discards the conversation and the cached token, forcing a full
// re-authentication on the next Start.
func (c *Connector) Clean() {
	c.mu.Lock()
	c.conv = nil
	c.token = nil
	c.mu.Unlock()
}

func (c *Connector) ensureToken(ctx context.Context) (*inbenta.Token, error) {
	c.mu.Lock()
	prev := c.token
	c.mu.Unlock()

	token, err := c.tokens.EnsureValid(ctx, prev)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return token, nil
}
