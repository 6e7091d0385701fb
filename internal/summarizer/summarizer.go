// Package summarizer produces short plain-text summaries of
// notification PDFs via the Anthropic Messages API. Summarization is
// best-effort by contract: any failure here leaves the summary nil and
// the pipeline continues on the raw scraped description.
package summarizer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/lexwatch/tribsync/internal/config"
	"github.com/lexwatch/tribsync/internal/logger"
)

const (
	defaultModel       = "claude-3-5-haiku-latest"
	defaultMaxWords    = 100
	defaultMinInterval = 6 * time.Second // stays under a 10 RPM tier
	maxOutputTokens    = 512
)

// systemPrompt pins the output contract: short, plain text, no
// formatting. Downstream message templates cannot render markdown.
const systemPrompt = "Eres un asistente legal. Resume el documento judicial adjunto " +
	"en espanol claro para el titular del caso. Maximo 100 palabras. " +
	"Texto plano: sin listas, sin negritas, sin encabezados, sin asteriscos."

const userPrompt = "Resume esta notificacion judicial."

// ErrNotConfigured is returned when no API key is set. Callers treat
// it like any other summarizer failure: degrade, don't abort.
var ErrNotConfigured = errors.New("summarizer not configured")

// markdownChars strips the formatting characters a model emits despite
// prompt constraints. Model output is untrusted text.
var markdownChars = regexp.MustCompile("[*_`#>]+")

var bulletPrefix = regexp.MustCompile(`(?m)^\s*[-•]\s+`)

// Service summarizes PDFs through the Anthropic API, throttled to a
// fixed request rate. Call volume per run is small, so a mandatory
// inter-call delay is enough; no queue.
type Service struct {
	client   anthropic.Client
	limiter  *rate.Limiter
	model    string
	maxWords int
	enabled  bool
	log      logger.Interface
}

// New creates a summarizer service. Extra request options are accepted
// for tests (custom base URL, HTTP client).
func New(cfg config.Summarizer, log logger.Interface, opts ...option.RequestOption) *Service {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxWords := cfg.MaxWords
	if maxWords <= 0 {
		maxWords = defaultMaxWords
	}
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = defaultMinInterval
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)

	return &Service{
		client:   anthropic.NewClient(clientOpts...),
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		model:    model,
		maxWords: maxWords,
		enabled:  cfg.APIKey != "",
		log:      log,
	}
}

// Summarize sends the PDF to the model and returns a bounded
// plain-text summary.
func (s *Service) Summarize(ctx context.Context, pdf []byte) (string, error) {
	if !s.enabled {
		return "", ErrNotConfigured
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("summarizer throttle: %w", err)
	}

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: maxOutputTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
					Data: base64.StdEncoding.EncodeToString(pdf),
				}),
				anthropic.NewTextBlock(userPrompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarizer request: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	summary := Sanitize(text.String(), s.maxWords)
	if summary == "" {
		return "", errors.New("summarizer returned empty text")
	}

	return summary, nil
}

// Sanitize normalizes model output for message templates: formatting
// characters removed, whitespace collapsed, bounded word count.
func Sanitize(raw string, maxWords int) string {
	clean := bulletPrefix.ReplaceAllString(raw, "")
	clean = markdownChars.ReplaceAllString(clean, "")

	words := strings.Fields(clean)
	if len(words) > maxWords {
		words = words[:maxWords]
	}

	return strings.Join(words, " ")
}
