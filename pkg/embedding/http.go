package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	rediscache "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/cache/redis"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/retry"
	sharedhttp "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/shared/http"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/ucrserrors"
)

// HTTPEmbedder calls an external embedding service over HTTP, caching
// results in Redis when a cache is configured. A nil cache degrades
// gracefully to calling the service on every request.
type HTTPEmbedder struct {
	baseURL string
	cache   *rediscache.Cache[[]float32]
	logger  logr.Logger
	client  *http.Client
	retry   retry.RetryConfig
}

// NewHTTPEmbedder builds an HTTPEmbedder against baseURL. cache may be nil.
func NewHTTPEmbedder(baseURL string, cache *rediscache.Cache[[]float32], logger logr.Logger) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL: baseURL,
		cache:   cache,
		logger:  logger,
		client:  sharedhttp.NewClient(sharedhttp.LLMClientConfig(30 * time.Second)),
		retry: retry.RetryConfig{
			MaxAttempts:       4,
			InitialDelay:      5 * time.Millisecond,
			MaxDelay:          50 * time.Millisecond,
			BackoffMultiplier: 2.0,
			Jitter:            false,
		},
	}
}

// Dimension returns DefaultDimension, the only dimensionality this client
// accepts: Embed and Health reject a service reporting any other.
func (e *HTTPEmbedder) Dimension() int {
	return DefaultDimension
}

type embedRequest struct {
	Text string `json:"text"`
}

// Embed returns the embedding for text, serving from cache when available
// and retrying transient service failures.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ucrserrors.NewInvalidInput("text", "must not be empty after trimming")
	}

	if e.cache != nil {
		if cached, found, err := e.cache.Get(ctx, text); err == nil && found {
			return cached, nil
		}
	}

	retrier := retry.NewRetrier(e.retry, nil)
	result, err := retrier.ExecuteWithType(ctx, func(ctx context.Context, attempt int) (any, error) {
		return e.callEmbed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	emb := result.([]float32)

	if e.cache != nil {
		go func() {
			_ = e.cache.Set(context.Background(), text, emb)
		}()
	}

	return emb, nil
}

func (e *HTTPEmbedder) callEmbed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, retry.WrapRetryableError(err, true, "embedding service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, retry.WrapRetryableError(fmt.Errorf("embedding service status %d", resp.StatusCode), true, "embedding service unavailable")
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, retry.WrapRetryableError(fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(raw)), false, "embedding service client error")
	}

	var parsed EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, retry.WrapRetryableError(fmt.Errorf("failed to decode embed response: %w", err), false, "malformed embed response")
	}

	if len(parsed.Embedding) != parsed.Dimensions || parsed.Dimensions != DefaultDimension {
		return nil, retry.WrapRetryableError(
			fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(parsed.Embedding), DefaultDimension),
			false, "dimension mismatch")
	}

	return parsed.Embedding, nil
}

// Health checks the embedding service's /health endpoint, verifying it
// reports the dimensionality this client expects.
func (e *HTTPEmbedder) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("embedding service health check returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if parsed.Dimensions != DefaultDimension {
		return fmt.Errorf("embedding service dimensions mismatch: got %d, want %d", parsed.Dimensions, DefaultDimension)
	}
	return nil
}
