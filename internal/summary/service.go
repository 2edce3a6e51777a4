// Package summary is the sync facade between SUMMARY.md text and the wiki
// store: pull the current outline as text, or apply edited text to the store.
package summary

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/craftwiki/internal/cache"
	"github.com/starford/craftwiki/internal/checksum"
	"github.com/starford/craftwiki/internal/metrics"
	"github.com/starford/craftwiki/internal/outline"
	"github.com/starford/craftwiki/internal/reconcile"
	"github.com/starford/craftwiki/internal/sse"
	"github.com/starford/craftwiki/internal/storage"
	"github.com/starford/craftwiki/internal/store"
)

// DefaultSummaryFile is the outline mirror name inside the wiki directory.
const DefaultSummaryFile = "SUMMARY.md"

// Publisher receives change notifications. *sse.Broker implements it.
type Publisher interface {
	PublishChange(kind, slug string)
}

// SyncResult is the outcome of applying outline text. It is always returned,
// also for invalid input or partial failure.
type SyncResult struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	// Line is the source line of a parse or duplicate-slug error.
	Line       int               `json:"line,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
	Warnings   []outline.Warning `json:"warnings,omitempty"`
	Text       string            `json:"text,omitempty"`
	Categories reconcile.Counts  `json:"categories"`
	Pages      reconcile.Counts  `json:"pages"`
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches the generated outline text.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithFiles mirrors the outline to name inside files and enables Export.
func WithFiles(files storage.Provider, name string) Option {
	return func(s *Service) {
		s.files = files
		if name != "" {
			s.summaryFile = name
		}
	}
}

// WithPublisher sends change events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithMetrics records sync metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConcurrency lets the reconciler process n top-level categories at once.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// Service coordinates the parser, reconciler, store, cache and file mirror.
type Service struct {
	store       store.Store
	rec         *reconcile.Reconciler
	cache       cache.Cache
	files       storage.Provider
	summaryFile string
	pub         Publisher
	metrics     *metrics.Metrics
	log         *slog.Logger
	concurrency int

	// mu serializes applies and guards lastWritten.
	mu          sync.Mutex
	lastWritten string

	// cacheMu orders cache fills against invalidation. gen changes before
	// and after every apply; a pull only fills the cache when gen is the
	// same as when it started reading the store.
	cacheMu sync.Mutex
	gen     uint64
}

// NewService creates a Service over st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:       st,
		cache:       cache.Nop{},
		summaryFile: DefaultSummaryFile,
		log:         slog.Default(),
		concurrency: 1,
	}
	for _, o := range opts {
		o(s)
	}
	s.rec = reconcile.New(st, reconcile.WithConcurrency(s.concurrency), reconcile.WithLogger(s.log))
	return s
}

// PullCurrentOutlineText generates SUMMARY.md text from the visible rows.
func (s *Service) PullCurrentOutlineText(ctx context.Context) (string, error) {
	text, ok, err := s.cache.GetOutline(ctx)
	if err != nil {
		s.log.Warn("summary: outline cache read failed", slog.String("error", err.Error()))
	}
	s.metrics.CacheLookup(ok)
	if ok {
		return text, nil
	}

	s.cacheMu.Lock()
	gen := s.gen
	s.cacheMu.Unlock()

	nodes, err := s.PullOutline(ctx)
	if err != nil {
		return "", err
	}
	text = outline.Generate(nodes)

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.gen {
		// an apply ran while the rows were read
		return text, nil
	}
	if err := s.cache.SetOutline(ctx, text); err != nil {
		s.log.Warn("summary: outline cache write failed", slog.String("error", err.Error()))
	}
	return text, nil
}

// invalidate drops the cached outline and starts a new cache generation.
func (s *Service) invalidate(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gen++
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("summary: outline cache invalidate failed", slog.String("error", err.Error()))
	}
}

// ApplyOutlineText parses text and reconciles the store to it. Invalid text
// leaves the store untouched. Success is true only when every row mutation
// succeeded.
func (s *Service) ApplyOutlineText(ctx context.Context, text string) *SyncResult {
	return s.ApplyOutlineTextIfMatch(ctx, text, "")
}

// ApplyOutlineTextIfMatch is ApplyOutlineText with optimistic concurrency:
// a non-empty ifMatch must equal the checksum of the current outline text,
// otherwise nothing is applied and the outcome is metrics.OutcomeConflict.
// The check and the apply happen under the same lock.
func (s *Service) ApplyOutlineTextIfMatch(ctx context.Context, text, ifMatch string) *SyncResult {
	res := s.apply(ctx, text, ifMatch)
	if res.Success && s.files != nil {
		s.mu.Lock()
		err := s.writeSummaryLocked(res.Text)
		s.mu.Unlock()
		if err != nil {
			s.log.Error("summary: mirror outline file", slog.String("error", err.Error()))
		}
	}
	return res
}

func (s *Service) apply(ctx context.Context, text, ifMatch string) *SyncResult {
	start := time.Now()
	res := s.applyText(ctx, text, ifMatch)
	s.metrics.ObserveSync(res.Outcome, time.Since(start))

	attrs := []any{
		slog.String("outcome", res.Outcome),
		slog.Duration("took", time.Since(start)),
	}
	if res.Success {
		s.log.Info("summary: outline applied", attrs...)
	} else {
		s.log.Warn("summary: outline apply failed", append(attrs, slog.String("message", res.Message))...)
	}
	return res
}

func (s *Service) applyText(ctx context.Context, text, ifMatch string) *SyncResult {
	doc, err := outline.Parse(text)
	if err != nil {
		return invalid(err)
	}

	s.mu.Lock()
	if ifMatch != "" {
		current, err := s.PullCurrentOutlineText(ctx)
		if err != nil {
			s.mu.Unlock()
			return &SyncResult{Outcome: metrics.OutcomeError, Message: err.Error(), Warnings: doc.Warnings}
		}
		if checksum.Sum([]byte(current)) != ifMatch {
			s.mu.Unlock()
			return &SyncResult{
				Outcome:  metrics.OutcomeConflict,
				Message:  "outline changed since it was read",
				Warnings: doc.Warnings,
			}
		}
	}
	s.invalidate(ctx)
	r, err := s.rec.Reconcile(ctx, doc.Nodes)
	s.invalidate(ctx)
	s.mu.Unlock()
	if err != nil {
		var dup *outline.DuplicateSlugError
		if errors.As(err, &dup) {
			res := invalid(err)
			res.Warnings = doc.Warnings
			return res
		}
		return &SyncResult{Outcome: metrics.OutcomeError, Message: err.Error(), Warnings: doc.Warnings}
	}

	if s.pub != nil {
		s.pub.PublishChange(sse.ChangeOutline, "")
	}
	s.recordRows(r)
	cats, pages := outline.Count(doc.Nodes)
	s.log.Debug("summary: outline reconciled",
		slog.Int("categories", cats),
		slog.Int("pages", pages),
		slog.Int("row_errors", len(r.Errors)))

	res := &SyncResult{
		Success:    r.OK(),
		Outcome:    metrics.OutcomeSuccess,
		Message:    "outline applied",
		Warnings:   doc.Warnings,
		Text:       r.Text,
		Categories: r.Categories,
		Pages:      r.Pages,
	}
	if !r.OK() {
		res.Outcome = metrics.OutcomePartial
		res.Message = "outline applied with errors"
		for _, e := range r.Errors {
			res.Errors = append(res.Errors, e.Error())
		}
	}
	return res
}

func (s *Service) recordRows(r *reconcile.Result) {
	for kind, c := range map[string]reconcile.Counts{"category": r.Categories, "page": r.Pages} {
		s.metrics.AddRows(kind, "created", c.Created)
		s.metrics.AddRows(kind, "updated", c.Updated)
		s.metrics.AddRows(kind, "hidden", c.Hidden)
	}
	s.metrics.AddRowErrors(len(r.Errors))
}

func invalid(err error) *SyncResult {
	res := &SyncResult{Outcome: metrics.OutcomeInvalid, Message: err.Error()}
	var pe *outline.ParseError
	var dup *outline.DuplicateSlugError
	switch {
	case errors.As(err, &pe):
		res.Line = pe.Line
	case errors.As(err, &dup) && len(dup.Lines) > 0:
		res.Line = dup.Lines[len(dup.Lines)-1]
	}
	return res
}
