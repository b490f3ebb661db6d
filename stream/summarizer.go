// Information Hiding:
// - Summarization prompt and timeout hidden behind the Summarizer interface
package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/theseus/llm"
)

// Summarizer rewords a deterministic step summary. Implementations must
// return quickly; the emitter falls back to the deterministic text on any
// error or empty result.
type Summarizer interface {
	Summarize(ctx context.Context, step Step, deterministic string) (string, error)
}

// DefaultSummarizeTimeout caps a single summarization call so the stream
// never stalls behind a slow model.
const DefaultSummarizeTimeout = 3 * time.Second

const summarizeSystemPrompt = `You compress progress notes from a research run into one short, friendly sentence for the person waiting on the answer. Keep tool names if they appear. Never add information that is not in the note. Reply with the sentence only.`

// AISummarizer rewords summaries with a model call under a hard timeout.
type AISummarizer struct {
	client  *llm.Client
	timeout time.Duration
	logger  *zap.Logger
}

var _ Summarizer = (*AISummarizer)(nil)

// NewAISummarizer wraps a client. Zero timeout means DefaultSummarizeTimeout.
func NewAISummarizer(client *llm.Client, timeout time.Duration, logger *zap.Logger) *AISummarizer {
	if timeout <= 0 {
		timeout = DefaultSummarizeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AISummarizer{client: client, timeout: timeout, logger: logger}
}

// Summarize asks the model for a friendlier single-sentence version of the
// deterministic summary. Errors and timeouts are reported to the caller,
// never retried here.
func (s *AISummarizer) Summarize(ctx context.Context, step Step, deterministic string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("no client configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Chat(callCtx, []llm.ChatMessage{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: deterministic},
	})
	if err != nil {
		s.logger.Debug("step summarization failed",
			zap.String("step_type", string(step.Type)),
			zap.Error(err))
		return "", err
	}

	line := firstLine(resp.Content)
	if line == "" {
		return "", fmt.Errorf("empty summary")
	}
	return line, nil
}

// firstLine trims a model reply down to a single clean line.
func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(strings.Trim(text, `"`))
}
