package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// EnterpriseSummarizer calls a self-hosted summarization endpoint
// authenticated via an OAuth2 client-credentials grant, for ProviderConfig
// rows naming an internal/enterprise deployment rather than a public
// vendor API. The client secret is read from cfg.APIKeyEnv the same way
// every other adapter reads its API key; the OAuth token endpoint is
// derived from cfg.Endpoint by tokenURLFor.
type EnterpriseSummarizer struct {
	httpClient *http.Client
	endpoint   string
	model      string
	retry      RetryPolicy
}

// NewEnterpriseSummarizer builds an EnterpriseSummarizer whose HTTP client
// automatically attaches and refreshes a bearer token via clientcredentials.
func NewEnterpriseSummarizer(endpoint, clientIDEnv, clientSecretEnv, model string) *EnterpriseSummarizer {
	cfg := clientcredentials.Config{
		ClientID:     os.Getenv(clientIDEnv),
		ClientSecret: os.Getenv(clientSecretEnv),
		TokenURL:     tokenURLFor(endpoint),
	}
	return &EnterpriseSummarizer{
		httpClient: cfg.Client(context.Background()),
		endpoint:   endpoint,
		model:      model,
		retry:      DefaultRetryPolicy,
	}
}

// tokenURLFor derives the token endpoint from a summarize/embed endpoint:
// everything from the first "/v1/" is replaced by "/oauth/token"; an
// endpoint without "/v1/" keeps its path (trailing slashes trimmed) and
// gets "/oauth/token" appended.
func tokenURLFor(endpoint string) string {
	if idx := strings.Index(endpoint, "/v1/"); idx >= 0 {
		return endpoint[:idx] + "/oauth/token"
	}
	return strings.TrimRight(endpoint, "/") + "/oauth/token"
}

type enterpriseSummarizeRequest struct {
	Model       string   `json:"model"`
	Messages    []string `json:"messages"`
	TargetWords int      `json:"targetWords"`
}

type enterpriseSummarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize posts messages to the enterprise endpoint and returns its
// generated summary text, retrying transient failures under the shared
// RetryPolicy. The clientcredentials-wrapped httpClient refreshes its
// bearer token transparently on expiry.
func (s *EnterpriseSummarizer) Summarize(ctx context.Context, messages []string, targetWords int) (string, error) {
	var summary string
	err := withRetry(ctx, s.retry, func() error {
		body, err := json.Marshal(enterpriseSummarizeRequest{Model: s.model, Messages: messages, TargetWords: targetWords})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("enterprise summarize endpoint returned %d", resp.StatusCode)
		}

		var decoded enterpriseSummarizeResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return err
		}
		summary = decoded.Summary
		return nil
	})
	if err != nil {
		return "", errUnavailable(err, "enterprise")
	}
	return summary, nil
}
