package provider

import (
	"context"
	"errors"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/ZaguanLabs/phrasebook"
	"github.com/go-resty/resty/v2"
)

// DefaultGoogleBaseURL is the Cloud Translation API endpoint.
const DefaultGoogleBaseURL = "https://translation.googleapis.com"

// GoogleProvider is the high-capacity backend, backed by the Google Cloud
// Translation v2 REST API.
type GoogleProvider struct {
	descriptor phrasebook.ProviderDescriptor
	http       *resty.Client
	apiKey     string
	baseURL    string
	timeout    time.Duration
}

// GoogleConfig holds configuration for the Google provider.
type GoogleConfig struct {
	ID           string        // Provider ID (default: "google")
	Priority     int           // Position in the default order
	MonthlyLimit int64         // Characters per month, <= 0 means unmetered
	APIKey       string        // Cloud Translation API key
	BaseURL      string        // Custom base URL (default: DefaultGoogleBaseURL)
	Timeout      time.Duration // Per-call timeout (default: 5s)
}

// NewGoogleProvider creates a new Google provider.
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	id := cfg.ID
	if id == "" {
		id = "google"
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &GoogleProvider{
		descriptor: phrasebook.ProviderDescriptor{
			ID:           id,
			Priority:     cfg.Priority,
			MonthlyLimit: cfg.MonthlyLimit,
		},
		http:    resty.New().SetHeader("User-Agent", phrasebook.UserAgent()),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

type googleRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Errors  []struct {
			Reason string `json:"reason"`
			Domain string `json:"domain"`
		} `json:"errors"`
	} `json:"error"`
}

// Descriptor implements phrasebook.Provider.
func (p *GoogleProvider) Descriptor() phrasebook.ProviderDescriptor {
	return p.descriptor
}

// Translate translates a single phrase.
func (p *GoogleProvider) Translate(ctx context.Context, text, srcLang, tgtLang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var resp googleResponse
	var errResp googleErrorResponse
	rr, err := p.http.R().SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(googleRequest{
			Q:      text,
			Source: phrasebook.BaseLang(srcLang),
			Target: phrasebook.BaseLang(tgtLang),
			Format: "text",
		}).
		SetResult(&resp).
		SetError(&errResp).
		Post(p.baseURL + "/language/translate/v2")
	if err != nil {
		kind := phrasebook.OutcomeNetworkError
		if errors.Is(err, context.DeadlineExceeded) {
			kind = phrasebook.OutcomeTimeout
		}
		return "", phrasebook.NewProviderError(p.descriptor.ID, kind, "Google Translate call failed", err)
	}

	if rr.IsError() {
		msg := errResp.Error.Message
		if msg == "" {
			msg = rr.Status()
		}
		return "", phrasebook.NewProviderError(p.descriptor.ID, classifyGoogleError(rr.StatusCode(), errResp), msg, nil)
	}

	if len(resp.Data.Translations) == 0 {
		return "", phrasebook.NewProviderError(p.descriptor.ID, phrasebook.OutcomeNetworkError, "no translations in response", nil)
	}

	// format=text still escapes a few entities
	translated := strings.TrimSpace(html.UnescapeString(resp.Data.Translations[0].TranslatedText))
	if translated == "" {
		return "", phrasebook.NewProviderError(p.descriptor.ID, phrasebook.OutcomeUnsupported, "empty translation", nil)
	}
	return translated, nil
}

// classifyGoogleError maps an error response onto an outcome. Reasons take
// precedence over the status code.
func classifyGoogleError(status int, resp googleErrorResponse) phrasebook.Outcome {
	for _, e := range resp.Error.Errors {
		switch e.Reason {
		case "dailyLimitExceeded", "userRateLimitExceeded", "rateLimitExceeded", "quotaExceeded", "dailyLimitExceededUnreg", "rateLimitExceededUnreg":
			return phrasebook.OutcomeQuotaExceeded
		case "keyInvalid", "keyExpired", "accessNotConfigured", "ipRefererBlocked", "forbidden", "authError":
			return phrasebook.OutcomeAuthError
		case "invalid", "invalidValue", "badRequest":
			if status == http.StatusBadRequest {
				return phrasebook.OutcomeUnsupported
			}
		}
	}

	switch resp.Error.Status {
	case "RESOURCE_EXHAUSTED":
		return phrasebook.OutcomeQuotaExceeded
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return phrasebook.OutcomeAuthError
	}

	return outcomeForStatus(status)
}

// Verify GoogleProvider implements phrasebook.Provider
var _ phrasebook.Provider = (*GoogleProvider)(nil)
