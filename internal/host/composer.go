// Package host talks to the social network the mini app is embedded in.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/behzadon/podium/internal/domain"
	"go.uber.org/zap"
)

// StatusClientClosedRequest is what the compose endpoint answers when the user
// dismissed the composer.
const StatusClientClosedRequest = 499

type composeRequest struct {
	Text   string   `json:"text"`
	Embeds []string `json:"embeds"`
}

type composeResponse struct {
	Hash      string `json:"hash"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// HTTPComposer opens the host's post composer on behalf of the user and
// waits for the user to publish or dismiss it.
type HTTPComposer struct {
	url    string
	apiKey string
	http   *http.Client
	logger *zap.Logger
}

func NewHTTPComposer(url, apiKey string, client *http.Client, logger *zap.Logger) *HTTPComposer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPComposer{url: url, apiKey: apiKey, http: client, logger: logger}
}

// ComposePost returns the hash of the published post. An empty hash without
// error means the composer closed without posting.
func (c *HTTPComposer) ComposePost(ctx context.Context, text string, embeds []string) (string, error) {
	b, err := json.Marshal(composeRequest{Text: text, Embeds: embeds})
	if err != nil {
		return "", fmt.Errorf("marshal compose request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("create compose request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if signer := SignerFrom(ctx); signer != "" {
		req.Header.Set("X-Signer", signer)
	}

	r, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.NewFlowError("compose post", domain.ErrCancelled, "", ctx.Err())
		}
		return "", domain.NewFlowError("compose post", domain.ErrTransient, "", err)
	}
	defer r.Body.Close()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", domain.NewFlowError("compose post", domain.ErrTransient, "", fmt.Errorf("read reply: %w", err))
	}

	var cr composeResponse
	decodeErr := json.Unmarshal(raw, &cr)

	if r.StatusCode == StatusClientClosedRequest || (decodeErr == nil && cr.Cancelled) {
		c.logger.Debug("composer dismissed by user")
		return "", domain.NewFlowError("compose post", domain.ErrCancelled, "", nil)
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return "", domain.NewFlowError("compose post", domain.ErrTransient, cr.Message,
			fmt.Errorf("host replied %d", r.StatusCode))
	}
	if decodeErr != nil {
		return "", domain.NewFlowError("compose post", domain.ErrTransient, "", fmt.Errorf("decode reply: %w", decodeErr))
	}
	return strings.TrimSpace(cr.Hash), nil
}

type signerKey struct{}

// WithSigner names the host account the post is composed for.
func WithSigner(ctx context.Context, signer string) context.Context {
	return context.WithValue(ctx, signerKey{}, signer)
}

func SignerFrom(ctx context.Context) string {
	s, _ := ctx.Value(signerKey{}).(string)
	return s
}
