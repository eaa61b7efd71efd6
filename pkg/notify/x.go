package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
)

// DefaultXEndpoint is the X API v2 post creation endpoint.
const DefaultXEndpoint = "https://api.twitter.com/2/tweets"

// XCredentials holds the OAuth 1.0a user-context keys.
type XCredentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// Complete reports whether every key is set.
func (c XCredentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// DefaultXTimeout bounds a single post request.
const DefaultXTimeout = 10 * time.Second

// XChannel publishes posts through the X API with OAuth 1.0a signing.
// Text longer than MaxPostLength is truncated.
type XChannel struct {
	endpoint string
	config   *oauth1.Config
	token    *oauth1.Token
	client   *http.Client
	logger   *slog.Logger
}

// XOption configures an XChannel.
type XOption func(*XChannel)

// WithXTimeout overrides DefaultXTimeout.
func WithXTimeout(d time.Duration) XOption {
	return func(x *XChannel) { x.client.Timeout = d }
}

// NewXChannel creates an X channel. An empty endpoint uses DefaultXEndpoint.
func NewXChannel(creds XCredentials, endpoint string, logger *slog.Logger, opts ...XOption) (*XChannel, error) {
	if !creds.Complete() {
		return nil, fmt.Errorf("x credentials incomplete")
	}
	if endpoint == "" {
		endpoint = DefaultXEndpoint
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	x := &XChannel{
		endpoint: endpoint,
		config:   oauth1.NewConfig(creds.APIKey, creds.APISecret),
		token:    oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret),
		client:   &http.Client{Timeout: DefaultXTimeout},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

func (x *XChannel) Name() string { return "x" }

func (x *XChannel) Send(ctx context.Context, msg Message) error {
	text := Truncate(msg.Text, MaxPostLength)
	if text != msg.Text {
		x.logger.Warn("post truncated", "id", msg.OutageID, "limit", MaxPostLength)
	}

	body, err := json.Marshal(xPostRequest{Text: text})
	if err != nil {
		return fmt.Errorf("marshal x post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create x request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// oauth1 signs through the client stored in ctx, else http.DefaultClient.
	signCtx := context.WithValue(ctx, oauth1.HTTPClient, x.client)
	resp, err := x.config.Client(signCtx, x.token).Do(req)
	if err != nil {
		return fmt.Errorf("send x post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("x returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	// The post is live once X accepts it; an unreadable body is not a failure.
	var created xPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		x.logger.Warn("decode x response", "id", msg.OutageID, "status", resp.StatusCode, "error", err)
		return nil
	}
	x.logger.Info("post published", "id", msg.OutageID, "post_id", created.Data.ID)
	return nil
}

type xPostRequest struct {
	Text string `json:"text"`
}

type xPostResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}
