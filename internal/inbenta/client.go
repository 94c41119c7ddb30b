// Package inbenta is the HTTP client stack for the Inbenta chatbot and
// chatbot-editor APIs: token lifecycle, conversation sessions, message
// dispatch with answer normalization, and paginated content access.
package inbenta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/convobench/inbenta-relay-go/internal/errors"
)

const (
	// DefaultAuthBaseURL is the shared entry point for credential
	// exchange; all other endpoints are discovered from the auth
	// response.
	DefaultAuthBaseURL = "https://api.inbenta.io"

	pathAuth                = "/auth"
	pathConversation        = "/conversation"
	pathConversationMessage = "/conversation/message"
	pathTrackingEvents      = "/tracking/events"

	headerAPIKey   = "X-Inbenta-Key"
	headerSource   = "X-Inbenta-Source"
	headerEnv      = "X-Inbenta-Env"
	headerUserType = "X-Inbenta-User-Type"
	headerSession  = "X-Inbenta-Session"
	headerTimezone = "timezone"

	requestTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
)

// Credentials identify one API consumer. Immutable; the personal secret
// is only set for editor-scoped credentials.
type Credentials struct {
	APIKey         string
	Secret         string
	PersonalSecret string
	APIVersion     string
}

func (c Credentials) version() string {
	if c.APIVersion == "" {
		return "v1"
	}
	return c.APIVersion
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// platformErrorBody is the nested error shape some platform responses
// carry; its message is preferred over the generic status text.
type platformErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// statusError turns a non-success response into an AppError with the
// given code, preferring the platform-provided message when present.
func statusError(code apperrors.ErrorCode, resp *http.Response) *apperrors.AppError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var pe platformErrorBody
	if err := json.Unmarshal(body, &pe); err == nil && pe.Error.Message != "" {
		return apperrors.New(code, pe.Error.Message)
	}
	return apperrors.New(code, fmt.Sprintf("got error response: %d/%s",
		resp.StatusCode, http.StatusText(resp.StatusCode)))
}

// doJSON issues one JSON request and decodes the response body into out
// (when out is non-nil). Non-success statuses become an AppError carrying
// errCode.
func doJSON(ctx context.Context, client *http.Client, method, url string,
	headers map[string]string, body any, out any, errCode apperrors.ErrorCode) error {

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(errCode, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(errCode, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(errCode, "decode response body", err)
	}
	return nil
}
