package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"summaryd/internal/domain"
)

const (
	defaultMaxOutputTokens int64 = 1000
	// Lower temperature keeps summaries focused.
	summaryTemperature = 0.3

	systemPrompt = "You are a helpful assistant that specializes in summarizing documents."

	userPromptTemplate = `Please summarize the following text concisely while preserving the key information:

%s

Summary:`
)

// OpenAIConfig configures the chat-completions client. BaseURL makes the
// client work against any OpenAI-compatible endpoint (api.openai.com,
// api.x.ai, a local proxy).
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxOutputTokens int64
	// RequestTimeout bounds one completion call. It must stay below the
	// queue visibility timeout so a slow call cannot race its own
	// redelivery.
	RequestTimeout time.Duration
}

// OpenAISummarizer calls a chat-completions endpoint to produce summaries.
type OpenAISummarizer struct {
	client          openai.Client
	model           string
	maxOutputTokens int64
	requestTimeout  time.Duration
}

func NewOpenAISummarizer(cfg OpenAIConfig) (*OpenAISummarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("API key is empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model is empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxOutputTokens := cfg.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}

	return &OpenAISummarizer{
		client:          openai.NewClient(opts...),
		model:           cfg.Model,
		maxOutputTokens: maxOutputTokens,
		requestTimeout:  cfg.RequestTimeout,
	}, nil
}

// Summarize produces a summary for one document. Failures are classified into
// domain.ProcessingError so the worker can tell retryable ones apart.
func (s *OpenAISummarizer) Summarize(ctx context.Context, input Input) (string, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return "", &domain.ProcessingError{
			Err:       errors.New("input is empty"),
			Retryable: false,
		}
	}

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf(userPromptTemplate, text)),
		},
		Temperature: openai.Float(summaryTemperature),
		MaxTokens:   openai.Int(s.maxOutputTokens),
	})
	if err != nil {
		return "", classify(fmt.Errorf("do request: %w", err))
	}

	if len(resp.Choices) == 0 {
		return "", &domain.ProcessingError{
			Err:       errors.New("response has no choices"),
			Retryable: false,
		}
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", &domain.ProcessingError{
			Err:       errors.New("completion text is empty"),
			Retryable: false,
		}
	}

	return summary, nil
}

// classify maps transport and API errors onto the retry policy: timeouts,
// rate limits, and server-side failures are worth another attempt; the rest
// of the 4xx range is not.
func classify(err error) error {
	var perr *domain.ProcessingError
	if errors.As(err, &perr) {
		return err
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusRequestTimeout,
			apierr.StatusCode == http.StatusTooManyRequests,
			apierr.StatusCode >= http.StatusInternalServerError:
			return &domain.ProcessingError{Err: err, Retryable: true}
		default:
			return &domain.ProcessingError{Err: err, Retryable: false}
		}
	}

	// Network failures and deadline hits arrive unclassified.
	return &domain.ProcessingError{Err: err, Retryable: true}
}
