package inbenta

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/convobench/inbenta-relay-go/internal/errors"
	"github.com/convobench/inbenta-relay-go/internal/gate"
	"github.com/convobench/inbenta-relay-go/internal/model"
)

// Conversation is a live session with the chatbot API. It exists until
// the connector discards it; there is no remote teardown call.
type Conversation struct {
	SessionToken string `json:"sessionToken"`
	SessionID    string `json:"sessionId"`
}

// ChatClientConfig wires one ChatClient. Credentials is the only
// mandatory field; the zero values of the rest select the platform
// defaults.
type ChatClientConfig struct {
	Credentials Credentials
	Source      string
	Environment string
	Lang        string
	Timezone    string
	UserType    *int
	UseVoting   bool
	Gate        gate.Gate
	HTTPClient  *http.Client
}

// ChatClient issues conversational calls against the chatbot API. Every
// wire call runs through the admission gate exactly once.
type ChatClient struct {
	httpClient  *http.Client
	creds       Credentials
	source      string
	environment string
	lang        string
	timezone    string
	userType    *int
	useVoting   bool
	gate        gate.Gate
}

func NewChatClient(cfg ChatClientConfig) *ChatClient {
	c := &ChatClient{
		httpClient:  cfg.HTTPClient,
		creds:       cfg.Credentials,
		source:      cfg.Source,
		environment: cfg.Environment,
		lang:        cfg.Lang,
		timezone:    cfg.Timezone,
		userType:    cfg.UserType,
		useVoting:   cfg.UseVoting,
		gate:        cfg.Gate,
	}
	if c.httpClient == nil {
		c.httpClient = defaultHTTPClient()
	}
	if c.gate == nil {
		c.gate = gate.NewFIFO(1)
	}
	if c.environment == "" {
		c.environment = "development"
	}
	if c.lang == "" {
		c.lang = "en"
	}
	return c
}

// OpenConversation starts a session with a valid token.
func (c *ChatClient) OpenConversation(ctx context.Context, token *Token) (*Conversation, error) {
	base := token.endpointFor(ScopeChatbot)
	if base == "" {
		return nil, apperrors.Session("Chatbot API endpoint not available")
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token.AccessToken,
		headerAPIKey:    c.creds.APIKey,
		headerEnv:       c.environment,
	}
	if c.source != "" {
		headers[headerSource] = c.source
	}
	if c.userType != nil {
		headers[headerUserType] = strconv.Itoa(*c.userType)
	}
	if c.timezone != "" {
		headers[headerTimezone] = c.timezone
	}

	url := fmt.Sprintf("%s/%s%s", base, c.creds.version(), pathConversation)
	body := map[string]string{"lang": c.lang}

	var conv Conversation
	err := c.gate.Run(ctx, func() error {
		return doJSON(ctx, c.httpClient, http.MethodPost, url, headers, body, &conv, apperrors.ErrCodeSession)
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to start conversation")
		return nil, err
	}

	if conv.SessionToken == "" {
		return nil, apperrors.Session("Session token not found in conversation response")
	}
	if conv.SessionID == "" {
		return nil, apperrors.Session("Session id not found in conversation response")
	}

	log.Info().Str("sessionId", conv.SessionID).Msg("conversation started")
	return &conv, nil
}

// Send forwards one outbound event and returns the normalized bot
// messages the response produced, in arrival order. Rating feedback
// (a RatingEvent, or an option payload of type "rate") goes to the
// tracking endpoint and yields no messages.
func (c *ChatClient) Send(ctx context.Context, token *Token, conv *Conversation, event OutboundEvent) ([]model.BotMessage, error) {
	var body any
	switch e := event.(type) {
	case WelcomeEvent:
		body = map[string]string{"directCall": "sys-welcome"}
	case TextEvent:
		body = map[string]string{"message": e.Text}
	case OptionEvent:
		if rating, ok := decodeRatePayload(e.Payload); ok {
			return nil, c.sendRating(ctx, token, conv, rating)
		}
		body = map[string]any{"option": optionValue(e.Payload)}
	case RatingEvent:
		return nil, c.sendRating(ctx, token, conv, e)
	default:
		return nil, apperrors.Internal(fmt.Sprintf("unhandled outbound event %T", event))
	}

	base := token.endpointFor(ScopeChatbot)
	url := fmt.Sprintf("%s/%s%s", base, c.creds.version(), pathConversationMessage)

	start := time.Now()
	var response struct {
		Answers []Answer `json:"answers"`
	}
	err := c.gate.Run(ctx, func() error {
		return doJSON(ctx, c.httpClient, http.MethodPost, url, c.sessionHeaders(token, conv), body, &response, apperrors.ErrCodeTransport)
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to send message")
		return nil, err
	}

	messages := normalizeAnswers(response.Answers, c.useVoting)
	log.Debug().
		Int("answers", len(response.Answers)).
		Int("messages", len(messages)).
		Dur("elapsed", time.Since(start)).
		Msg("conversation step completed")
	return messages, nil
}

func (c *ChatClient) sendRating(ctx context.Context, token *Token, conv *Conversation, rating RatingEvent) error {
	base := token.endpointFor(ScopeChatbot)
	url := fmt.Sprintf("%s/%s%s", base, c.creds.version(), pathTrackingEvents)

	err := c.gate.Run(ctx, func() error {
		return doJSON(ctx, c.httpClient, http.MethodPost, url, c.sessionHeaders(token, conv), rating.payload(), nil, apperrors.ErrCodeTransport)
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to send rate event")
		return err
	}
	log.Debug().Str("code", rating.Code).Str("value", rating.Value).Msg("rate event sent")
	return nil
}

func (c *ChatClient) sessionHeaders(token *Token, conv *Conversation) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token.AccessToken,
		headerAPIKey:    c.creds.APIKey,
		headerSession:   "Bearer " + conv.SessionToken,
	}
}
