package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
	"github.com/kailas-cloud/newsdex/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/newsdex/internal/logger"
	aggregateuc "github.com/kailas-cloud/newsdex/internal/usecase/aggregate"
	corpusuc "github.com/kailas-cloud/newsdex/internal/usecase/corpus"
	healthuc "github.com/kailas-cloud/newsdex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/newsdex/internal/usecase/search"
)

const (
	defaultStatsTop = 10
	maxStatsTop     = 100
	maxBodyBytes    = 8 << 20
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Options holds request defaults and limits.
type Options struct {
	DefaultThreshold float64
	DefaultLimit     int
	MaxLimit         int
	// RootDir confines file and directory aggregation. Empty allows any path.
	RootDir string
}

// Server serves the newsdex HTTP API.
type Server struct {
	search        Searcher
	aggregate     Aggregator
	health        HealthReporter
	cache         CacheSizer // optional
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. cache may be nil.
func NewServer(
	search Searcher,
	aggregate Aggregator,
	health HealthReporter,
	cache CacheSizer,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = request.DefaultLimit
	}
	if opts.MaxLimit <= 0 || opts.MaxLimit > request.MaxLimit {
		opts.MaxLimit = request.MaxLimit
	}
	s := &Server{
		search:    search,
		aggregate: aggregate,
		health:    health,
		cache:     cache,
		opts:      opts,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		commitFailedHandler,
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, ErrorResponseCodeDocumentNotFound),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, ErrorResponseCodeValidationFailed),
		sentinelHandler(domain.ErrInvalidThreshold, http.StatusBadRequest, ErrorResponseCodeValidationFailed),
		sentinelHandler(domain.ErrUnknownCategory, http.StatusBadRequest, ErrorResponseCodeValidationFailed),
		sentinelHandler(domain.ErrLowSignal, http.StatusUnprocessableEntity, ErrorResponseCodeLowSignalQuery),
		sentinelHandler(domain.ErrTextTooShort, http.StatusUnprocessableEntity, ErrorResponseCodeTextTooShort),
		sentinelHandler(domain.ErrNoTextExtracted, http.StatusUnprocessableEntity, ErrorResponseCodeNoTextExtracted),
		sentinelHandler(domain.ErrUnsupportedFile,
			http.StatusUnsupportedMediaType, ErrorResponseCodeUnsupportedFile),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorResponseCodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, ErrorResponseCodeEmbeddingProviderError),
		sentinelHandler(domain.ErrLLMProviderError, http.StatusBadGateway, ErrorResponseCodeLLMProviderError),
		sentinelHandler(domain.ErrNERFailed, http.StatusBadGateway, ErrorResponseCodeNERFailed),
	}
	return s
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	var top *int
	if err := runtime.BindQueryParameter("form", true, false, "top", r.URL.Query(), &top); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid parameter top")
		return
	}
	n := defaultStatsTop
	if top != nil {
		if *top < 0 || *top > maxStatsTop {
			writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed,
				fmt.Sprintf("top must be between 0 and %d", maxStatsTop))
			return
		}
		n = *top
	}

	sum, err := s.aggregate.Stats(r.Context(), n)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	cached := 0
	if s.cache != nil {
		cached = s.cache.Len()
	}
	writeJSON(w, http.StatusOK, StatsToAPI(sum, cached))
}

// AggregateFile handles POST /aggregate.
func (s *Server) AggregateFile(w http.ResponseWriter, r *http.Request) {
	var req AggregateFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FilePath) == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "file_path is required")
		return
	}
	path, ok := s.confine(w, r, req.FilePath)
	if !ok {
		return
	}

	res, err := s.aggregate.AggregateFile(r.Context(), path, req.URL)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeAggregate(w, res)
}

// AggregateText handles POST /aggregate/text.
func (s *Server) AggregateText(w http.ResponseWriter, r *http.Request) {
	var req AggregateTextRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.aggregate.AggregateText(r.Context(), req.URL, req.Text)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeAggregate(w, res)
}

// AggregateDirectory handles POST /aggregate/directory.
// Per-file failures are reported in the body; the request itself succeeds.
func (s *Server) AggregateDirectory(w http.ResponseWriter, r *http.Request) {
	var req AggregateDirectoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Dir) == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "dir is required")
		return
	}
	dir, ok := s.confine(w, r, req.Dir)
	if !ok {
		return
	}

	report, err := s.aggregate.AggregateDirectory(r.Context(), dir, req.URLPrefix)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DirectoryToAPI(report))
}

// SearchDocuments handles POST /search.
func (s *Server) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := s.searchRequestFromAPI(body)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.runSearch(w, r, &req)
}

// SearchQuery handles GET /search?q=&limit=&threshold=.
func (s *Server) SearchQuery(w http.ResponseWriter, r *http.Request) {
	var params SearchParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "q", q, &params.Q); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid parameter q: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &params.Limit); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid parameter limit")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "threshold", q, &params.Threshold); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid parameter threshold")
		return
	}

	req, err := s.searchRequestFromAPI(SearchRequest{Query: params.Q, Limit: params.Limit, Threshold: params.Threshold})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.runSearch(w, r, &req)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req *request.Request) {
	resp, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponseToAPI(resp))
}

// GetDocument handles GET /documents?url=.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	url, ok := bindURL(w, r)
	if !ok {
		return
	}

	doc, err := s.aggregate.Get(r.Context(), url)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentToAPI(doc))
}

// DeleteDocument handles DELETE /documents?url=.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	url, ok := bindURL(w, r)
	if !ok {
		return
	}

	if err := s.aggregate.Delete(r.Context(), url); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bindURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	var url string
	if err := runtime.BindQueryParameter("form", true, true, "url", r.URL.Query(), &url); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid parameter url: "+err.Error())
		return "", false
	}
	if strings.TrimSpace(url) == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "url is required")
		return "", false
	}
	return url, true
}

// confine resolves p and checks it lies within the configured root directory.
func (s *Server) confine(w http.ResponseWriter, r *http.Request, p string) (string, bool) {
	if s.opts.RootDir == "" {
		return p, true
	}
	root, err := filepath.Abs(s.opts.RootDir)
	if err != nil {
		s.handleDomainError(w, r, err)
		return "", false
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "path is outside the aggregation root")
		return "", false
	}
	return abs, true
}

func (s *Server) searchRequestFromAPI(body SearchRequest) (request.Request, error) {
	def := s.opts.DefaultThreshold
	if body.Threshold != nil {
		def = *body.Threshold
	}

	overrides := make(map[entity.Category]float64, len(body.Thresholds))
	for name, v := range body.Thresholds {
		c, err := entity.ParseCategory(name)
		if err != nil {
			return request.Request{}, fmt.Errorf("thresholds: %w", err)
		}
		overrides[c] = v
	}
	th, err := request.NewThresholds(def, overrides)
	if err != nil {
		return request.Request{}, fmt.Errorf("thresholds: %w", err)
	}

	var ents entity.Map
	if len(body.Entities) > 0 {
		var ignored []string
		ents, ignored = entity.FromRaw(body.Entities)
		if len(ignored) > 0 {
			return request.Request{}, fmt.Errorf("entities %v: %w", ignored, domain.ErrUnknownCategory)
		}
	}

	limit := s.opts.DefaultLimit
	if body.Limit != nil {
		if *body.Limit <= 0 || *body.Limit > s.opts.MaxLimit {
			return request.Request{}, fmt.Errorf("limit must be between 1 and %d: %w",
				s.opts.MaxLimit, domain.ErrInvalidRequest)
		}
		limit = *body.Limit
	}

	req, err := request.New(body.Query, ents, th, limit, body.Since)
	if err != nil {
		return request.Request{}, fmt.Errorf("build search request: %w", err)
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

var sentinels = []error{
	domain.ErrDocumentNotFound,
	domain.ErrInvalidRequest,
	domain.ErrInvalidThreshold,
	domain.ErrUnknownCategory,
	domain.ErrLowSignal,
	domain.ErrTextTooShort,
	domain.ErrNoTextExtracted,
	domain.ErrUnsupportedFile,
	domain.ErrCommitFailed,
	domain.ErrRateLimited,
	domain.ErrEmbeddingProviderError,
	domain.ErrLLMProviderError,
	domain.ErrNERFailed,
}

// safeDomainMessage hides internals: input errors keep their detail, everything else
// collapses to the sentinel text.
func safeDomainMessage(err error) string {
	for _, input := range []error{
		domain.ErrInvalidRequest, domain.ErrInvalidThreshold, domain.ErrUnknownCategory,
	} {
		if errors.Is(err, input) {
			return err.Error()
		}
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func errorCode(err error) ErrorResponseCode {
	switch {
	case errors.Is(err, domain.ErrCommitFailed):
		return ErrorResponseCodeCommitFailed
	case errors.Is(err, domain.ErrDocumentNotFound):
		return ErrorResponseCodeDocumentNotFound
	case errors.Is(err, domain.ErrTextTooShort):
		return ErrorResponseCodeTextTooShort
	case errors.Is(err, domain.ErrNoTextExtracted):
		return ErrorResponseCodeNoTextExtracted
	case errors.Is(err, domain.ErrUnsupportedFile):
		return ErrorResponseCodeUnsupportedFile
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnknownCategory):
		return ErrorResponseCodeValidationFailed
	case errors.Is(err, domain.ErrNERFailed):
		return ErrorResponseCodeNERFailed
	case errors.Is(err, domain.ErrRateLimited):
		return ErrorResponseCodeRateLimited
	default:
		return ErrorResponseCodeInternalError
	}
}

func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// commitFailedHandler maps a failed document/statistics commit. Retryable failures
// answer 503 so clients resend the whole aggregation.
func commitFailedHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrCommitFailed) {
		return false
	}
	retryable := domain.IsRetryable(err)
	status := http.StatusInternalServerError
	if retryable {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, ErrorResponse{
		Code:      ErrorResponseCodeCommitFailed,
		Message:   msg,
		Retryable: &retryable,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContext(r.Context(), s.logger)
	logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}

func writeAggregate(w http.ResponseWriter, res aggregateuc.Result) {
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, AggregateToAPI(res))
}

// AggregateToAPI converts an aggregation result to its wire form.
func AggregateToAPI(res aggregateuc.Result) AggregateResponse {
	return AggregateResponse{
		URL:      res.URL,
		Created:  res.Created,
		Entities: res.Entities,
		Dropped:  res.Dropped,
	}
}

// DirectoryToAPI converts a directory report to its wire form.
func DirectoryToAPI(report aggregateuc.Report) DirectoryResponse {
	resp := DirectoryResponse{
		Succeeded: make([]AggregateResponse, len(report.Succeeded)),
		Failed:    make([]AggregateFailure, len(report.Failed)),
	}
	for i, res := range report.Succeeded {
		resp.Succeeded[i] = AggregateToAPI(res)
	}
	for i, f := range report.Failed {
		resp.Failed[i] = AggregateFailure{
			Path:      f.Path,
			URL:       f.URL,
			Code:      errorCode(f.Err),
			Message:   safeDomainMessage(f.Err),
			Retryable: domain.IsRetryable(f.Err),
		}
	}
	return resp
}

// StatsToAPI converts a corpus summary plus the live cache size to its wire form.
func StatsToAPI(sum corpusuc.Summary, cacheEntries int) StatsResponse {
	resp := StatsResponse{
		Documents:     sum.Documents,
		Indexed:       sum.Indexed,
		DistinctTerms: sum.DistinctTerms,
		CacheEntries:  cacheEntries,
		TopTerms:      make([]TermItem, len(sum.Top)),
	}
	for i, t := range sum.Top {
		resp.TopTerms[i] = TermItem{Category: string(t.Term.Category), Key: t.Term.Key, DF: t.DF}
	}
	return resp
}

// SearchResponseToAPI converts a search response to its wire form.
func SearchResponseToAPI(resp searchuc.Response) SearchResponse {
	out := SearchResponse{
		Query:    resp.Query,
		Improved: resp.Improved,
		Outcome:  string(resp.Outcome),
		Results:  make([]SearchResultItem, len(resp.Results)),
	}
	if len(resp.Entities) > 0 {
		out.Entities = make(map[string][]string, len(resp.Entities))
		for c, values := range resp.Entities {
			out.Entities[string(c)] = values
		}
	}
	for i := range resp.Results {
		r := &resp.Results[i]
		item := SearchResultItem{
			URL:       r.URL(),
			Score:     r.Score(),
			IndexedAt: r.IndexedAt(),
		}
		for _, m := range r.Matches() {
			item.Matches = append(item.Matches, MatchItem{
				Category: string(m.Category),
				Key:      m.Key,
				Weight:   m.Weight,
			})
		}
		out.Results[i] = item
	}
	return out
}

// DocumentToAPI converts a stored document to its wire form.
func DocumentToAPI(doc article.Document) DocumentResponse {
	resp := DocumentResponse{
		URL:       doc.URL(),
		IndexedAt: doc.IndexedAt(),
		Entities:  make(map[string][]EntityResponse),
	}
	for _, c := range entity.All() {
		ents := doc.Entities(c)
		if len(ents) == 0 {
			continue
		}
		items := make([]EntityResponse, len(ents))
		for i, e := range ents {
			items[i] = EntityResponse{Key: e.Key(), Value: e.Value()}
		}
		resp.Entities[string(c)] = items
	}
	return resp
}
