package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
	"github.com/kailas-cloud/newsdex/internal/domain/search/improve"
)

func TestImprover_Improve(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, `{"improved_query":"2024 London floods","entities":{"locations":["London"],"dates":["2024"],"organizations":["ACME"]},"confidence":0.82}`, &req)

	imp := NewImprover(chatConfig(srv.URL))
	sug, err := imp.Improve(context.Background(), "that flood thing", &improve.Context{Query: "london flooding", Similarity: 0.74})
	if err != nil {
		t.Fatalf("Improve: %v", err)
	}

	if sug.Query != "2024 London floods" {
		t.Errorf("Query = %q", sug.Query)
	}
	if sug.Confidence != 0.82 {
		t.Errorf("Confidence = %v, want 0.82", sug.Confidence)
	}
	if got := sug.Entities[entity.Locations]; len(got) != 1 || got[0] != "London" {
		t.Errorf("locations = %v", got)
	}
	if len(sug.Entities) != 2 {
		t.Errorf("unknown categories should be dropped, got %v", sug.Entities)
	}

	format, _ := req["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", req["response_format"])
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	user, _ := msgs[1].(map[string]any)
	content, _ := user["content"].(string)
	if !strings.Contains(content, "that flood thing") || !strings.Contains(content, "london flooding") {
		t.Errorf("user prompt missing query or hint: %q", content)
	}
}

func TestImprover_Confidence(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  float64
	}{
		{"missing", `{"improved_query":"x"}`, 0},
		{"above one", `{"improved_query":"x","confidence":1.7}`, 1},
		{"negative", `{"improved_query":"x","confidence":-0.2}`, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := chatServer(t, tc.reply, nil)
			sug, err := NewImprover(chatConfig(srv.URL)).Improve(context.Background(), "q", nil)
			if err != nil {
				t.Fatalf("Improve: %v", err)
			}
			if sug.Confidence != tc.want {
				t.Errorf("Confidence = %v, want %v", sug.Confidence, tc.want)
			}
		})
	}
}

func TestImprover_InvalidReply(t *testing.T) {
	srv := chatServer(t, "I cannot help with that", nil)

	_, err := NewImprover(chatConfig(srv.URL)).Improve(context.Background(), "q", nil)
	if !errors.Is(err, domain.ErrLLMProviderError) {
		t.Fatalf("expected ErrLLMProviderError, got %v", err)
	}
}

func TestImprover_ProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	_, err := NewImprover(chatConfig(srv.URL)).Improve(context.Background(), "q", nil)
	if !errors.Is(err, domain.ErrLLMProviderError) {
		t.Fatalf("expected ErrLLMProviderError, got %v", err)
	}
}
