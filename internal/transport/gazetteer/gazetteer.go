// Package gazetteer is a dictionary-based NER collaborator. Known entity names are
// loaded from a YAML file keyed by category and matched as whole token sequences,
// case- and diacritic-insensitively, preferring the longest name at each position.
package gazetteer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

type phrase struct {
	tokens   []string
	category entity.Category
	name     string // canonical form emitted on match
}

// Extractor matches dictionary entries in text.
type Extractor struct {
	byFirst map[string][]phrase // sorted longest first
	size    int
	logger  *zap.Logger
}

// Load reads a gazetteer YAML file: a mapping from category name to a list of entity names.
func Load(path string, logger *zap.Logger) (*Extractor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer: %w", err)
	}
	return Parse(data, logger)
}

// Parse builds an extractor from gazetteer YAML. Unknown categories are rejected.
func Parse(data []byte, logger *zap.Logger) (*Extractor, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse gazetteer: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Extractor{byFirst: make(map[string][]phrase), logger: logger}
	for name, values := range raw {
		c, err := entity.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("gazetteer: %w", err)
		}
		for _, v := range values {
			toks := tokenize(v)
			if len(toks) == 0 {
				continue
			}
			e.byFirst[toks[0]] = append(e.byFirst[toks[0]], phrase{
				tokens:   toks,
				category: c,
				name:     strings.TrimSpace(v),
			})
			e.size++
		}
	}
	for k, ps := range e.byFirst {
		sort.SliceStable(ps, func(i, j int) bool { return len(ps[i].tokens) > len(ps[j].tokens) })
		e.byFirst[k] = ps
	}

	logger.Info("Gazetteer loaded", zap.Int("entries", e.size))
	return e, nil
}

// Len returns the number of dictionary entries.
func (e *Extractor) Len() int { return e.size }

// Extract returns every dictionary match in text. Repeated mentions are repeated in the
// result so occurrence counts survive.
func (e *Extractor) Extract(ctx context.Context, text string) (entity.Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := entity.Map{}
	toks := tokenize(text)
	for i := 0; i < len(toks); {
		p, ok := e.match(toks[i:])
		if !ok {
			i++
			continue
		}
		out.Add(p.category, p.name)
		i += len(p.tokens)
	}
	return out, nil
}

// HealthCheck always succeeds; the dictionary is in memory.
func (e *Extractor) HealthCheck(context.Context) error { return nil }

func (e *Extractor) match(toks []string) (phrase, bool) {
	for _, p := range e.byFirst[toks[0]] {
		if len(p.tokens) > len(toks) {
			continue
		}
		if equalTokens(p.tokens, toks[:len(p.tokens)]) {
			return p, true
		}
	}
	return phrase{}, false
}

func equalTokens(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// tokenize splits on anything that is not a letter, digit or mark and normalizes each word.
func tokenize(s string) []string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
	out := words[:0]
	for _, w := range words {
		if k := entity.NormalizeKey(w); k != "" {
			out = append(out, k)
		}
	}
	return out
}
