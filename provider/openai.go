package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ZaguanLabs/phrasebook"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider is the high-accuracy backend, backed by a chat completion model.
type OpenAIProvider struct {
	descriptor  phrasebook.ProviderDescriptor
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	context     string
	glossary    map[string]string
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	ID           string            // Provider ID (default: "openai")
	Priority     int               // Position in the default order
	MonthlyLimit int64             // Characters per month, <= 0 means unmetered
	APIKey       string            // OpenAI API key
	Model        string            // Model to use (default: "gpt-4o-mini")
	Temperature  float32           // Temperature for generation (default: 0.3)
	BaseURL      string            // Custom base URL (optional)
	Timeout      time.Duration     // Per-call timeout (default: 15s)
	Context      string            // Where the phrases come from, included in the prompt
	Glossary     map[string]string // Preferred translations for specific phrases
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	id := cfg.ID
	if id == "" {
		id = "openai"
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &OpenAIProvider{
		descriptor: phrasebook.ProviderDescriptor{
			ID:           id,
			Priority:     cfg.Priority,
			MonthlyLimit: cfg.MonthlyLimit,
		},
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
		timeout:     timeout,
		context:     cfg.Context,
		glossary:    cfg.Glossary,
	}
}

// Descriptor implements phrasebook.Provider.
func (p *OpenAIProvider) Descriptor() phrasebook.ProviderDescriptor {
	return p.descriptor
}

// Translate translates a single phrase.
func (p *OpenAIProvider) Translate(ctx context.Context, text, srcLang, tgtLang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.buildSystemPrompt(srcLang, tgtLang)},
			{Role: openai.ChatMessageRoleUser, Content: buildUserMessage(text)},
		},
		Temperature: p.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", phrasebook.NewProviderError(p.descriptor.ID, classifyOpenAIError(err), "OpenAI API call failed", err)
	}

	if len(resp.Choices) == 0 {
		return "", phrasebook.NewProviderError(p.descriptor.ID, phrasebook.OutcomeNetworkError, "no response from OpenAI", nil)
	}

	translated, err := parseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return "", phrasebook.NewProviderError(p.descriptor.ID, phrasebook.OutcomeNetworkError, "invalid response format from OpenAI", err)
	}
	return translated, nil
}

func (p *OpenAIProvider) buildSystemPrompt(srcLang, tgtLang string) string {
	sourceName := phrasebook.GetLanguageName(srcLang)
	targetName := phrasebook.GetLanguageName(tgtLang)

	contextText := "The phrases come from everyday spoken conversation."
	if p.context != "" {
		contextText = fmt.Sprintf("The phrases are for: %s. Adapt the tone to be appropriate for this context.", p.context)
	}

	prompt := fmt.Sprintf(`# Role
You are an expert native translator from %s to %s with the fluency and nuance of a highly educated native speaker.

# Context
%s

# Task
Translate the provided phrase into idiomatic %s.

# Style Guide
- **Natural Flow**: Avoid literal translations. Rephrase to sound completely natural to a native speaker.
- **Register**: Keep the politeness level of the source phrase.
- **Idioms**: Never translate idioms literally. Use natural %s equivalents.
- **Formatting**: Use idiomatic punctuation for the target language. Do not add explanations or romanization.`,
		sourceName, targetName, contextText, targetName, targetName)

	if len(p.glossary) > 0 {
		sources := make([]string, 0, len(p.glossary))
		for source := range p.glossary {
			sources = append(sources, source)
		}
		sort.Strings(sources)

		prompt += "\n\n# Glossary\nWhen you encounter these phrases, prefer these translations (unless context demands otherwise):"
		for _, source := range sources {
			prompt += fmt.Sprintf("\n- \"%s\" → %s", source, p.glossary[source])
		}
	}

	prompt += `

# Format
Return a valid JSON object with a single key "translation" containing the translated string.
Example: { "translation": "translated phrase" }
- Do NOT wrap in Markdown code blocks.`

	return prompt
}

func buildUserMessage(text string) string {
	data, _ := json.Marshal(map[string]string{"text": text})
	return string(data)
}

func parseResponse(content string) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return "", err
	}

	if s, ok := obj["translation"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s), nil
	}

	// Fallback: first non-empty string value
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}

	return "", errors.New("no translation in response")
}

// classifyOpenAIError maps go-openai errors onto outcomes.
func classifyOpenAIError(err error) phrasebook.Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return phrasebook.OutcomeTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
			return phrasebook.OutcomeQuotaExceeded
		}
		return outcomeForStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return outcomeForStatus(reqErr.HTTPStatusCode)
	}

	return phrasebook.OutcomeNetworkError
}

// Verify OpenAIProvider implements phrasebook.Provider
var _ phrasebook.Provider = (*OpenAIProvider)(nil)
