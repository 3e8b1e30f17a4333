package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// NLPResult holds the language analysis of a review's text.
type NLPResult struct {
	Constructiveness float64  `json:"constructiveness"` // 0..1
	Clarity          float64  `json:"clarity"`          // 0..1
	Professionalism  float64  `json:"professionalism"`  // 0..1
	Sentiment        string   `json:"sentiment"`        // 'positive', 'neutral', 'negative'
	BiasIndicators   []string `json:"bias_indicators"`
}

// NLPProvider analyzes review text. Implementations call an external service
// and are treated as untrusted and fallible; errors propagate to the job for retry.
type NLPProvider interface {
	AnalyzeReview(ctx context.Context, text string) (*NLPResult, error)
}

// HTTPNLPProvider calls a remote NLP analysis endpoint.
type HTTPNLPProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewHTTPNLPProvider creates an NLP provider from configuration.
func NewHTTPNLPProvider(cfg *config.NLPConfig, log *logger.Logger) *HTTPNLPProvider {
	return &HTTPNLPProvider{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.NLPTimeout()},
		log:        log,
	}
}

// AnalyzeReview posts the review text for analysis.
func (p *HTTPNLPProvider) AnalyzeReview(ctx context.Context, text string) (*NLPResult, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nlp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create nlp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nlp provider request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nlp provider returned status %d", resp.StatusCode)
	}

	var result NLPResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode nlp response: %w", err)
	}
	return &result, nil
}
