package inbenta

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	apperrors "github.com/convobench/inbenta-relay-go/internal/errors"
)

// ContentPageSize is the fixed page length used when listing contents.
const ContentPageSize = 100

// Attribute groups of a content item with sync-level meaning.
const (
	AttrAlternativeTitle = "ALTERNATIVE_TITLE"
	AttrModerateExpanded = "MODERATE_EXPANDED"
	AttrAnswerText       = "ANSWER_TEXT"
	AttrSidebubbleText   = "SIDEBUBBLE_TEXT"
)

// StatusActive marks a content item as live; only active titled items
// take part in synchronization.
const StatusActive = "active"

// DefaultCategoryID is where newly created content items land.
const DefaultCategoryID = 1

// ContentItem is one remote intent record. Titles are NOT unique across
// items; callers collapse duplicates to the first occurrence.
type ContentItem struct {
	ID                           int64              `json:"id"`
	Title                        string             `json:"title"`
	Status                       string             `json:"status"`
	NaturalLanguageTitleMatching bool               `json:"naturalLanguageTitleMatching"`
	Attributes                   []ContentAttribute `json:"attributes"`
}

// Valid reports whether the item takes part in synchronization.
func (c *ContentItem) Valid() bool {
	return c.Title != "" && c.Status == StatusActive
}

// Attribute returns a pointer to the named attribute group, or nil.
func (c *ContentItem) Attribute(name string) *ContentAttribute {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			return &c.Attributes[i]
		}
	}
	return nil
}

// AttributeValues returns the values of the named attribute group in
// order, or nil when the group is absent.
func (c *ContentItem) AttributeValues(name string) []string {
	attr := c.Attribute(name)
	if attr == nil {
		return nil
	}
	values := make([]string, 0, len(attr.Objects))
	for _, o := range attr.Objects {
		values = append(values, o.Value)
	}
	return values
}

type ContentAttribute struct {
	Name    string            `json:"name"`
	Objects []AttributeObject `json:"objects"`
}

type AttributeObject struct {
	Value string `json:"value"`
}

// CreateContentParams is the body of a content create call.
type CreateContentParams struct {
	Title      string             `json:"title"`
	Categories []int              `json:"categories"`
	Status     string             `json:"status"`
	Attributes []ContentAttribute `json:"attributes"`
}

// ContentPatch is the body of a content update call.
type ContentPatch struct {
	ID         int64              `json:"-"`
	Title      string             `json:"title"`
	Attributes []ContentAttribute `json:"attributes"`
}

// EditorClient issues content calls against the chatbot-editor API.
// It is driven strictly sequentially by the sync engine, so it holds
// the current token itself and re-ensures it before every call; no
// admission gate applies (synchronization is not interactive traffic).
type EditorClient struct {
	httpClient *http.Client
	creds      Credentials
	tokens     TokenSource
	token      *Token
}

func NewEditorClient(creds Credentials, tokens TokenSource, httpClient *http.Client) *EditorClient {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	return &EditorClient{httpClient: httpClient, creds: creds, tokens: tokens}
}

// ListContents pages through the content listing (fixed page size 100)
// until an empty or short page, then filters to valid items: titled and
// active. Items arrive in listing order.
func (e *EditorClient) ListContents(ctx context.Context) ([]ContentItem, error) {
	var all []ContentItem

	for page := 0; ; page++ {
		token, err := e.ensureToken(ctx)
		if err != nil {
			return nil, err
		}

		query := url.Values{}
		query.Set("length", strconv.Itoa(ContentPageSize))
		query.Set("offset", strconv.Itoa(page*ContentPageSize))
		requestURL := fmt.Sprintf("%s?%s", e.contentsURL(token, 0), query.Encode())

		var response struct {
			Data struct {
				Items []ContentItem `json:"items"`
			} `json:"data"`
		}
		if err := doJSON(ctx, e.httpClient, http.MethodGet, requestURL, e.headers(token), nil, &response, apperrors.ErrCodeTransport); err != nil {
			return nil, err
		}

		items := response.Data.Items
		if len(items) == 0 {
			break
		}
		log.Debug().Int("page", page).Int("items", len(items)).Msg("fetched content page")
		all = append(all, items...)
		if len(items) < ContentPageSize {
			break
		}
	}

	valid := make([]ContentItem, 0, len(all))
	for _, item := range all {
		if item.Valid() {
			valid = append(valid, item)
		}
	}
	log.Info().
		Int("valid", len(valid)).
		Int("ignored", len(all)-len(valid)).
		Msg("fetched content items")
	return valid, nil
}

// CreateContent writes a new content item.
func (e *EditorClient) CreateContent(ctx context.Context, params CreateContentParams) error {
	token, err := e.ensureToken(ctx)
	if err != nil {
		return err
	}
	return doJSON(ctx, e.httpClient, http.MethodPost, e.contentsURL(token, 0), e.headers(token), params, nil, apperrors.ErrCodeTransport)
}

// UpdateContent patches an existing content item.
func (e *EditorClient) UpdateContent(ctx context.Context, patch ContentPatch) error {
	token, err := e.ensureToken(ctx)
	if err != nil {
		return err
	}
	return doJSON(ctx, e.httpClient, http.MethodPatch, e.contentsURL(token, patch.ID), e.headers(token), patch, nil, apperrors.ErrCodeTransport)
}

func (e *EditorClient) ensureToken(ctx context.Context) (*Token, error) {
	token, err := e.tokens.EnsureValid(ctx, e.token)
	if err != nil {
		return nil, err
	}
	e.token = token
	return token, nil
}

func (e *EditorClient) contentsURL(token *Token, id int64) string {
	base := fmt.Sprintf("%s/%s/contents", token.endpointFor(ScopeEditor), e.creds.version())
	if id != 0 {
		return fmt.Sprintf("%s/%d", base, id)
	}
	return base
}

func (e *EditorClient) headers(token *Token) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token.AccessToken,
		headerAPIKey:    e.creds.APIKey,
	}
}
