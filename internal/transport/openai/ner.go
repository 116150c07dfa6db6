package openai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

const nerSystemPrompt = `You are a named-entity recognizer for news articles.
Return a single JSON object {"entities": [{"text": "...", "label": "..."}]}.
Use only these labels: PERSON, GPE (countries, cities, states), LOC (other locations),
FAC (buildings, airports, bridges), DATE, EVENT. Copy entity text exactly as written.`

// maxNERInputChars bounds the text sent per request.
const maxNERInputChars = 24000

// NER extracts entities with a chat-completion model.
type NER struct {
	chat   *chatClient
	logger *zap.Logger
}

// NewNER creates an LLM-backed entity extractor.
func NewNER(cfg *ChatConfig) *NER {
	c := newChatClient(cfg)
	return &NER{chat: c, logger: c.logger}
}

type nerReply struct {
	Entities []struct {
		Text  string `json:"text"`
		Label string `json:"label"`
	} `json:"entities"`
}

// Extract returns the entities found in text. Labels outside the closed category set are ignored.
func (n *NER) Extract(ctx context.Context, text string) (entity.Map, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return entity.Map{}, nil
	}
	if len(text) > maxNERInputChars {
		text = truncateUTF8(text, maxNERInputChars)
	}

	var reply nerReply
	if err := n.chat.completeJSON(ctx, "ner", nerSystemPrompt, text, &reply, domain.ErrNERFailed); err != nil {
		return nil, err
	}

	out := entity.Map{}
	skipped := 0
	for _, e := range reply.Entities {
		c, ok := entity.FromNERLabel(e.Label)
		if !ok {
			skipped++
			continue
		}
		out.Add(c, e.Text)
	}
	if skipped > 0 {
		n.logger.Debug("NER labels ignored", zap.Int("count", skipped))
	}
	return out, nil
}

// HealthCheck verifies the chat provider is reachable.
func (n *NER) HealthCheck(ctx context.Context) error {
	if err := n.chat.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ner: %w", err)
	}
	return nil
}

func truncateUTF8(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
