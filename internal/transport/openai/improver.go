package openai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
	"github.com/kailas-cloud/newsdex/internal/domain/search/improve"
)

const improveSystemPrompt = `You improve vague search queries for a news archive.
Extract the key entities (people, locations, dates, countries, places, events),
clarify ambiguous terms and expand abbreviations.
Reply with a single JSON object:
{"improved_query": "...", "entities": {"people": [], "locations": [], "dates": [], "countries": [], "places": [], "events": []}, "confidence": 0.0}
confidence is between 0 and 1 and says how sure you are the rewrite keeps the user's intent.`

// Improver rewrites low-signal queries through a chat-completion model.
type Improver struct {
	chat   *chatClient
	logger *zap.Logger
}

// NewImprover creates an LLM query improver.
func NewImprover(cfg *ChatConfig) *Improver {
	c := newChatClient(cfg)
	return &Improver{chat: c, logger: c.logger}
}

type improveReply struct {
	ImprovedQuery string              `json:"improved_query"`
	Entities      map[string][]string `json:"entities"`
	Confidence    *float64            `json:"confidence"`
}

// Improve asks the model for a better query. hint, when set, is an earlier similar query.
func (i *Improver) Improve(ctx context.Context, query string, hint *improve.Context) (improve.Suggestion, error) {
	var reply improveReply
	if err := i.chat.completeJSON(ctx, "improve", improveSystemPrompt, improvePrompt(query, hint),
		&reply, domain.ErrLLMProviderError); err != nil {
		return improve.Suggestion{}, err
	}

	ents, ignored := entity.FromRaw(reply.Entities)
	if len(ignored) > 0 {
		i.logger.Debug("Improver returned unknown categories", zap.Strings("categories", ignored))
	}

	// A reply without a confidence is treated as a failed improvement.
	conf := 0.0
	if reply.Confidence != nil {
		conf = clamp01(*reply.Confidence)
	}

	return improve.Suggestion{
		Query:      strings.TrimSpace(reply.ImprovedQuery),
		Entities:   ents,
		Confidence: conf,
	}, nil
}

// HealthCheck verifies the chat provider is reachable.
func (i *Improver) HealthCheck(ctx context.Context) error {
	if err := i.chat.HealthCheck(ctx); err != nil {
		return fmt.Errorf("improver: %w", err)
	}
	return nil
}

func improvePrompt(query string, hint *improve.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %q\n", query)
	if hint != nil && hint.Query != "" {
		fmt.Fprintf(&b, "A similar earlier query (similarity %.2f): %q\n", hint.Similarity, hint.Query)
	}
	return b.String()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
