package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/linkedin-outreach/internal/config"
	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/pkg/httpretry"
)

// HTTPVerificationProvider calls an external email verification API.
type HTTPVerificationProvider struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewVerificationProvider builds the provider from config, or nil when
// verification is disabled.
func NewVerificationProvider(cfg config.VerificationConfig) *HTTPVerificationProvider {
	if !cfg.Enabled || cfg.BaseURL == "" {
		return nil
	}
	return &HTTPVerificationProvider{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 15 * time.Second,
		}, 3),
	}
}

type verificationResponse struct {
	Result string `json:"result"` // deliverable, undeliverable, risky, unknown
}

// Verify checks one address. Provider verdicts map onto the lead's email
// status values.
func (p *HTTPVerificationProvider) Verify(ctx context.Context, email string) (VerificationResult, error) {
	params := url.Values{}
	params.Set("email", email)
	params.Set("api_key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/verify?"+params.Encode(), nil)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return VerificationResult{}, fmt.Errorf("provider returned %d: %s", resp.StatusCode, body)
	}

	var vr verificationResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return VerificationResult{}, fmt.Errorf("decoding response: %w", err)
	}

	switch vr.Result {
	case "deliverable":
		return VerificationResult{Status: domain.EmailValid}, nil
	case "undeliverable":
		return VerificationResult{Status: domain.EmailInvalid}, nil
	case "risky":
		return VerificationResult{Status: domain.EmailRisky}, nil
	default:
		return VerificationResult{Status: domain.EmailUnknown}, nil
	}
}
