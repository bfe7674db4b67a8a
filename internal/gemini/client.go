// Package gemini implements integration with Google's Gemini AI API.
// It provides intent classification and amount conversion for the resolver.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/edgard/nutribot/internal/config"
)

var (
	// ErrMissingAPIKey is returned by NewClient when no key is configured.
	ErrMissingAPIKey = goerr.New("gemini API key is required")
	// ErrInvalidResponse marks output that does not match the requested schema.
	ErrInvalidResponse = goerr.New("invalid gemini response")
)

// Client defines the language model operations used by the classifier and
// the resolver. All methods fail soft: callers treat any error as a miss.
type Client interface {
	Classify(ctx context.Context, req ClassifyRequest) (*Classification, error)
	ConvertUnit(ctx context.Context, item, amount string, servingGrams float64, measures map[string]float64) (float64, error)
	ConvertDuration(ctx context.Context, activity, text string) (float64, error)
}

// ClassifyRequest is the input for intent classification.
type ClassifyRequest struct {
	Text    string
	History []string
	Intents []string
}

// Classification is the raw model verdict. Items are validated by the caller.
type Classification struct {
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Items      []RawItem `json:"items"`
}

// RawItem is an extracted food or exercise mention.
type RawItem struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Duration string `json:"duration"`
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

type sdkClient struct {
	generate         generateFunc
	breaker          *gobreaker.CircuitBreaker
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	maxRetries       int
	retryDelay       time.Duration
}

// NewClient creates a new Gemini AI client with the provided configuration.
func NewClient(
	ctx context.Context,
	cfg config.GeminiConfig,
	log *slog.Logger,
) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	c := newClient(gi.Models.GenerateContent, cfg, log)
	c.log.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return c, nil
}

func newClient(generate generateFunc, cfg config.GeminiConfig, log *slog.Logger) *sdkClient {
	logger := log.With("component", "gemini_client")

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		// A caller giving up is not a sign the API is unhealthy.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidResponse)
		},
	})

	return &sdkClient{
		generate: generate,
		breaker:  breaker,
		log:      logger,
		contentConfig: &genai.GenerateContentConfig{
			Temperature:      &cfg.Temperature,
			ResponseMIMEType: "application/json",
		},
		defaultModelName: cfg.ModelName,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.generate(ctx, c.defaultModelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		if code, ok := apiErrorCode(err); ok && (code == 500 || code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", code)
				select {
				case <-time.After(c.retryDelay):
					continue
				case <-ctx.Done():
					return nil, goerr.Wrap(ctx.Err(), "gemini retry aborted")
				}
			}
			return nil, goerr.Wrap(err, "gemini API call failed after retries", goerr.V("retries", c.maxRetries), goerr.V("code", code))
		}

		return nil, goerr.Wrap(err, "gemini API call failed")
	}
	return nil, err
}

// apiErrorCode extracts the HTTP status of a genai.APIError. The SDK returns
// it by value, pointers are accepted too.
func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

// generateJSON runs one schema-constrained request through the breaker and
// decodes the JSON answer into out.
func (c *sdkClient) generateJSON(ctx context.Context, op, system, prompt string, schema *genai.Schema, out any) error {
	cfg := *c.contentConfig
	cfg.ResponseSchema = schema
	cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.generateContentWithRetries(ctx, contents, &cfg)
		if err != nil {
			return nil, err
		}
		text, err := c.extractTextFromResponse(ctx, op, resp)
		if err != nil {
			return nil, err
		}
		return text, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.log.DebugContext(ctx, "Gemini call short-circuited", "operation", op, "error", err)
		}
		return goerr.Wrap(err, "gemini request failed", goerr.V("operation", op))
	}

	jsonText := result.(string)
	if err := json.Unmarshal([]byte(jsonText), out); err != nil {
		c.log.WarnContext(ctx, "Failed to parse Gemini JSON response", "operation", op, "error", err, "response_text", jsonText)
		return goerr.Wrap(ErrInvalidResponse, "malformed JSON", goerr.V("operation", op), goerr.V("cause", err.Error()))
	}
	return nil
}

// Classify maps a batch of user text to one intent of the given taxonomy.
func (c *sdkClient) Classify(ctx context.Context, req ClassifyRequest) (*Classification, error) {
	c.log.DebugContext(ctx, "Classifying intent", "history_count", len(req.History))

	var sb strings.Builder
	if len(req.History) > 0 {
		sb.WriteString("Mensagens anteriores do usuário:\n")
		for _, h := range req.History {
			sb.WriteString("- " + h + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Mensagem atual:\n")
	sb.WriteString(req.Text)

	var out Classification
	system := fmt.Sprintf(ClassifierSystemInstruction, strings.Join(req.Intents, ", "))
	if err := c.generateJSON(ctx, "classify", system, sb.String(), classificationSchema(req.Intents), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type gramsAnswer struct {
	Grams float64 `json:"grams"`
}

// ConvertUnit estimates the grams in amount of item.
func (c *sdkClient) ConvertUnit(ctx context.Context, item, amount string, servingGrams float64, measures map[string]float64) (float64, error) {
	measuresJSON, err := json.Marshal(measures)
	if err != nil {
		measuresJSON = []byte("{}")
	}
	prompt := fmt.Sprintf(UnitConversionPrompt, item, amount, servingGrams, measuresJSON)

	var out gramsAnswer
	if err := c.generateJSON(ctx, "convert_unit", ConversionSystemInstruction, prompt, gramsSchema, &out); err != nil {
		return 0, err
	}
	if out.Grams <= 0 {
		return 0, goerr.Wrap(ErrInvalidResponse, "non-positive grams", goerr.V("grams", out.Grams))
	}
	return out.Grams, nil
}

type minutesAnswer struct {
	Minutes float64 `json:"minutes"`
}

// ConvertDuration estimates the minutes described by text.
func (c *sdkClient) ConvertDuration(ctx context.Context, activity, text string) (float64, error) {
	prompt := fmt.Sprintf(DurationConversionPrompt, activity, text)

	var out minutesAnswer
	if err := c.generateJSON(ctx, "convert_duration", ConversionSystemInstruction, prompt, minutesSchema, &out); err != nil {
		return 0, err
	}
	if out.Minutes <= 0 {
		return 0, goerr.Wrap(ErrInvalidResponse, "non-positive minutes", goerr.V("minutes", out.Minutes))
	}
	return out.Minutes, nil
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, op string, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", goerr.Wrap(ErrInvalidResponse, "nil response", goerr.V("operation", op))
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", goerr.Wrap(ErrInvalidResponse, "blocked by safety filter", goerr.V("operation", op), goerr.V("reason", reasonMsg))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "operation", op, "finish_reason", finishReason)
		return "", goerr.Wrap(ErrInvalidResponse, "empty content", goerr.V("operation", op), goerr.V("finish_reason", finishReason))
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", goerr.Wrap(ErrInvalidResponse, "empty text", goerr.V("operation", op))
	}
	return text, nil
}
