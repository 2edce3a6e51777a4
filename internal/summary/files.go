package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/starford/craftwiki/internal/apperr"
	"github.com/starford/craftwiki/internal/checksum"
	"github.com/starford/craftwiki/internal/metrics"
)

// ErrNoFiles is returned by file operations when no wiki directory is
// configured.
var ErrNoFiles = errors.New("summary: no wiki directory configured")

// ExportResult counts the files touched by Export.
type ExportResult struct {
	Written   int      `json:"written"`
	Unchanged int      `json:"unchanged"`
	Failed    []string `json:"failed,omitempty"`
	// Stale lists .md files that belong to no visible page. They are kept.
	Stale []string `json:"stale,omitempty"`
}

// SummaryFile returns the outline mirror name.
func (s *Service) SummaryFile() string { return s.summaryFile }

// ApplyOutlineFile applies the outline mirror file. It returns a nil result
// when the file content is what the service last wrote or applied.
func (s *Service) ApplyOutlineFile(ctx context.Context) (*SyncResult, error) {
	if s.files == nil {
		return nil, ErrNoFiles
	}
	data, err := s.files.Read(s.summaryFile)
	if err != nil {
		return nil, err
	}
	sum := checksum.Sum(data)

	s.mu.Lock()
	seen := sum == s.lastWritten
	s.mu.Unlock()
	if seen {
		return nil, nil
	}

	res := s.apply(ctx, string(data), "")
	// invalid text is not retried until the file changes again
	if res.Success || res.Outcome == metrics.OutcomeInvalid {
		s.mu.Lock()
		s.lastWritten = sum
		s.mu.Unlock()
	}
	return res, nil
}

// InitFile reconciles the mirror file with the store at startup: an existing
// file is applied, a missing one is written from the store.
func (s *Service) InitFile(ctx context.Context) (*SyncResult, error) {
	if s.files == nil {
		return nil, ErrNoFiles
	}
	res, err := s.ApplyOutlineFile(ctx)
	if !errors.Is(err, apperr.ErrNotFound) {
		return res, err
	}

	text, err := s.PullCurrentOutlineText(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil, s.writeSummaryLocked(text)
}

// Export writes the outline mirror and one <slug>.md per visible page.
// Files whose content already matches are left alone.
func (s *Service) Export(ctx context.Context) (*ExportResult, error) {
	if s.files == nil {
		return nil, ErrNoFiles
	}
	out := &ExportResult{}

	text, err := s.PullCurrentOutlineText(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	changed, err := s.summaryChangedLocked(text)
	if err == nil && changed {
		err = s.writeSummaryLocked(text)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if changed {
		out.Written++
	} else {
		out.Unchanged++
	}

	existing, err := s.files.List("")
	if err != nil {
		return nil, fmt.Errorf("summary: list wiki files: %w", err)
	}
	onDisk := make(map[string]string, len(existing))
	for _, f := range existing {
		onDisk[f.Path] = f.Checksum
	}
	delete(onDisk, path.Clean(s.summaryFile))

	pages, err := s.store.ListPages(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("summary: list pages: %w", err)
	}
	for _, p := range pages {
		name := pageFileName(p)
		if s.isSummaryFile(name) {
			// the mirror would be read back as an outline
			out.Failed = append(out.Failed, name)
			s.log.Error("summary: export page", slog.String("slug", p.Slug),
				slog.String("error", "file name collides with "+s.summaryFile))
			continue
		}
		current, known := onDisk[name]
		delete(onDisk, name)

		full, err := s.store.GetPage(ctx, p.Slug)
		if err != nil {
			out.Failed = append(out.Failed, name)
			s.log.Error("summary: export page", slog.String("slug", p.Slug), slog.String("error", err.Error()))
			continue
		}
		if known && current == checksum.Sum([]byte(full.Content)) {
			out.Unchanged++
			continue
		}
		if err := s.files.Write(name, []byte(full.Content)); err != nil {
			out.Failed = append(out.Failed, name)
			s.log.Error("summary: export page", slog.String("slug", p.Slug), slog.String("error", err.Error()))
			continue
		}
		out.Written++
	}

	for name := range onDisk {
		if !s.isSummaryFile(name) {
			out.Stale = append(out.Stale, name)
		}
	}
	sort.Strings(out.Stale)

	s.log.Info("summary: export finished",
		slog.Int("written", out.Written),
		slog.Int("unchanged", out.Unchanged),
		slog.Int("failed", len(out.Failed)),
		slog.Int("stale", len(out.Stale)),
	)
	return out, nil
}

// isSummaryFile reports whether name would land on the outline mirror,
// also on case-insensitive file systems.
func (s *Service) isSummaryFile(name string) bool {
	return strings.EqualFold(path.Clean(name), path.Clean(s.summaryFile))
}

func (s *Service) summaryChangedLocked(text string) (bool, error) {
	current, err := s.files.Checksum(s.summaryFile)
	if err != nil {
		return false, err
	}
	return current != checksum.Sum([]byte(text)), nil
}

// writeSummaryLocked writes text to the mirror file unless it already holds
// it, and remembers its checksum so the watcher skips the resulting event.
// s.mu must be held.
func (s *Service) writeSummaryLocked(text string) error {
	sum := checksum.Sum([]byte(text))
	s.lastWritten = sum
	current, err := s.files.Checksum(s.summaryFile)
	if err != nil {
		return err
	}
	if current == sum {
		return nil
	}
	if err := s.files.Write(s.summaryFile, []byte(text)); err != nil {
		return fmt.Errorf("summary: write %s: %w", s.summaryFile, err)
	}
	return nil
}
