package chi

import "time"

// ErrorResponseCode is a machine-readable error code.
type ErrorResponseCode string

// Error codes returned by the API.
const (
	ErrorResponseCodeBadRequest             ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized           ErrorResponseCode = "unauthorized"
	ErrorResponseCodeValidationFailed       ErrorResponseCode = "validation_failed"
	ErrorResponseCodeDocumentNotFound       ErrorResponseCode = "document_not_found"
	ErrorResponseCodeLowSignalQuery         ErrorResponseCode = "low_signal_query"
	ErrorResponseCodeTextTooShort           ErrorResponseCode = "text_too_short"
	ErrorResponseCodeNoTextExtracted        ErrorResponseCode = "no_text_extracted"
	ErrorResponseCodeUnsupportedFile        ErrorResponseCode = "unsupported_file"
	ErrorResponseCodeCommitFailed           ErrorResponseCode = "commit_failed"
	ErrorResponseCodeRateLimited            ErrorResponseCode = "rate_limited"
	ErrorResponseCodeEmbeddingProviderError ErrorResponseCode = "embedding_provider_error"
	ErrorResponseCodeLLMProviderError       ErrorResponseCode = "llm_provider_error"
	ErrorResponseCodeNERFailed              ErrorResponseCode = "ner_failed"
	ErrorResponseCodeInternalError          ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code      ErrorResponseCode `json:"code"`
	Message   string            `json:"message"`
	Retryable *bool             `json:"retryable,omitempty"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query      string              `json:"query"`
	Entities   map[string][]string `json:"entities,omitempty"`
	Limit      *int                `json:"limit,omitempty"`
	Threshold  *float64            `json:"threshold,omitempty"`
	Thresholds map[string]float64  `json:"thresholds,omitempty"`
	Since      *time.Time          `json:"since,omitempty"`
}

// SearchParams are the query parameters of GET /search.
type SearchParams struct {
	Q         string
	Limit     *int
	Threshold *float64
}

// SearchResponse is a ranked result page.
type SearchResponse struct {
	Query    string              `json:"query"`
	Improved bool                `json:"improved"`
	Outcome  string              `json:"outcome"`
	Entities map[string][]string `json:"entities,omitempty"`
	Results  []SearchResultItem  `json:"results"`
}

// SearchResultItem is one ranked document.
type SearchResultItem struct {
	URL       string      `json:"url"`
	Score     float64     `json:"score"`
	IndexedAt time.Time   `json:"indexed_at"`
	Matches   []MatchItem `json:"matches,omitempty"`
}

// MatchItem is one query entity found in a result.
type MatchItem struct {
	Category string  `json:"category"`
	Key      string  `json:"key"`
	Weight   float64 `json:"weight"`
}

// AggregateFileRequest is the body of POST /aggregate.
type AggregateFileRequest struct {
	FilePath string `json:"file_path"`
	URL      string `json:"url,omitempty"`
}

// AggregateTextRequest is the body of POST /aggregate/text.
type AggregateTextRequest struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// AggregateDirectoryRequest is the body of POST /aggregate/directory.
type AggregateDirectoryRequest struct {
	Dir       string `json:"dir"`
	URLPrefix string `json:"url_prefix,omitempty"`
}

// AggregateResponse describes one stored document.
type AggregateResponse struct {
	URL      string `json:"url"`
	Created  bool   `json:"created"`
	Entities int    `json:"entities"`
	Dropped  int    `json:"dropped"`
}

// AggregateFailure is a file that could not be stored.
type AggregateFailure struct {
	Path      string            `json:"path"`
	URL       string            `json:"url"`
	Code      ErrorResponseCode `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
}

// DirectoryResponse reports a directory aggregation.
type DirectoryResponse struct {
	Succeeded []AggregateResponse `json:"succeeded"`
	Failed    []AggregateFailure  `json:"failed"`
}

// DocumentResponse is a stored, rectified document.
type DocumentResponse struct {
	URL       string                      `json:"url"`
	IndexedAt time.Time                   `json:"indexed_at"`
	Entities  map[string][]EntityResponse `json:"entities"`
}

// EntityResponse is one rectified entity.
type EntityResponse struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// StatsResponse summarizes the corpus.
type StatsResponse struct {
	Documents     int64      `json:"documents"`
	Indexed       int64      `json:"indexed"`
	DistinctTerms int64      `json:"distinct_terms"`
	CacheEntries  int        `json:"cache_entries"`
	TopTerms      []TermItem `json:"top_terms"`
}

// TermItem is a term with its document frequency.
type TermItem struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	DF       int64  `json:"df"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
