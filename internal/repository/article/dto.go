package article

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	domart "github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// jsonEntity is the stored shape of a rectified entity.
type jsonEntity struct {
	Key   string  `json:"key"`
	Norm  string  `json:"norm"`
	Value float64 `json:"value"`
}

// jsonDoc is the stored shape of a rectified document. Entity lists keep
// their descending-value order.
type jsonDoc struct {
	URL       string                  `json:"url"`
	IndexedAt int64                   `json:"indexed_at"`
	Entities  map[string][]jsonEntity `json:"entities"`
}

func buildJSONDoc(doc *domart.Document) jsonDoc {
	out := jsonDoc{
		URL:       doc.URL(),
		IndexedAt: doc.IndexedAt().Unix(),
		Entities:  make(map[string][]jsonEntity),
	}
	for _, c := range entity.All() {
		list := doc.Entities(c)
		if len(list) == 0 {
			continue
		}
		items := make([]jsonEntity, len(list))
		for i, e := range list {
			items[i] = jsonEntity{Key: e.Key(), Norm: e.Norm(), Value: e.Value()}
		}
		out.Entities[string(c)] = items
	}
	return out
}

func (d *jsonDoc) toDomain() domart.Document {
	entities := make(map[entity.Category][]domart.Entity, len(d.Entities))
	for name, items := range d.Entities {
		c := entity.Category(name)
		if !c.IsValid() {
			continue
		}
		list := make([]domart.Entity, len(items))
		for i, it := range items {
			list[i] = domart.ReconstructEntity(c, it.Key, it.Norm, it.Value)
		}
		entities[c] = list
	}
	return domart.Reconstruct(d.URL, entities, time.Unix(d.IndexedAt, 0).UTC())
}

// parseDoc decodes either a bare document (FT.SEARCH "$" field) or the
// single-element array returned by JSON.GET/JSON.MGET with a "$" path.
func parseDoc(raw []byte) (domart.Document, error) {
	if len(raw) > 0 && raw[0] == '[' {
		var docs []jsonDoc
		if err := json.Unmarshal(raw, &docs); err != nil {
			return domart.Document{}, fmt.Errorf("unmarshal document: %w", err)
		}
		if len(docs) == 0 {
			return domart.Document{}, errEmptyResult
		}
		return docs[0].toDomain(), nil
	}
	var doc jsonDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domart.Document{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc.toDomain(), nil
}

// termField is the hash field and set member for one (category, normalized key) pair.
func termField(t entity.Term) string {
	return string(t.Category) + "\x1f" + t.Key
}

// termFields converts terms into hash fields, dropping duplicates.
func termFields(terms []entity.Term) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		f := termField(t)
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func urlHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
