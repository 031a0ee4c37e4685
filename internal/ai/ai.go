// Package ai wraps the chat-completion service used to extract structured
// data from documents.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"hseb5/internal/domain"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("ai: api key not configured")

// Completer sends one system/user exchange and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  *zap.Logger
}

// OpenAI is a Completer backed by the OpenAI chat API in JSON mode.
type OpenAI struct {
	llm    llms.Model
	model  string
	logger *zap.Logger
}

func NewOpenAI(opts Options) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	clientOpts := []openai.Option{openai.WithToken(opts.APIKey), openai.WithModel(opts.Model)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	llm, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("ai: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{llm: llm, model: opts.Model, logger: logger.With(zap.String("component", "ai"))}, nil
}

func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	resp, err := o.llm.GenerateContent(ctx, msgs, llms.WithJSONMode(), llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("ai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ai: completion returned no choices")
	}
	o.logger.Debug("completion", zap.String("model", o.model), zap.Int("chars", len(resp.Choices[0].Content)))
	return resp.Choices[0].Content, nil
}

var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseJSON reads a JSON object out of a completion. The whole text is tried
// first, then the outermost {...} span. When neither parses the text is
// returned under "raw_text" and ok is false.
func ParseJSON(text string) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err == nil && out != nil {
		return out, true
	}
	if m := objectPattern.FindString(text); m != "" {
		out = nil
		if err := json.Unmarshal([]byte(m), &out); err == nil && out != nil {
			return out, true
		}
	}
	return map[string]any{"raw_text": text}, false
}

// UserMessage frames the document text for the completion.
func UserMessage(fileName, text string) string {
	return fmt.Sprintf("Documento: %s\n\n%s", fileName, text)
}

// Sample builds a placeholder extraction with every field of the structure
// filled in. It stands in for the completion service in demo mode.
func Sample(fields []domain.OutputField) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f.Type {
		case domain.FieldNumber:
			out[f.Name] = 0.0
		case domain.FieldBoolean:
			out[f.Name] = false
		case domain.FieldArray:
			if len(f.Children) > 0 {
				out[f.Name] = []any{Sample(f.Children)}
			} else {
				out[f.Name] = []any{}
			}
		case domain.FieldObject:
			out[f.Name] = Sample(f.Children)
		default:
			out[f.Name] = "n/d"
		}
	}
	return out
}
