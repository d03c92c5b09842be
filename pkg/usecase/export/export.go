// Package export renders completed analysis records as markdown documents
// and writes them to a local path or an object storage bucket.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/adapter"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/repository"
	"github.com/m-mizutani/truthcast/pkg/utils/logging"
)

// Service exports records from the store. When storage is nil, exports go
// to the local filesystem only.
type Service struct {
	repo    repository.Repository
	storage adapter.Storage
}

type Option func(*Service)

// WithStorage attaches an object storage destination for remote exports.
func WithStorage(storage adapter.Storage) Option {
	return func(s *Service) {
		s.storage = storage
	}
}

func New(repo repository.Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportToFile renders the record and writes it to path.
func (s *Service) ExportToFile(ctx context.Context, id model.RecordID, path string) error {
	record, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to load record for export", goerr.V("id", id))
	}

	f, err := os.Create(path)
	if err != nil {
		return goerr.Wrap(err, "failed to create export file", goerr.V("path", path))
	}
	defer f.Close()

	if err := Render(f, record); err != nil {
		return err
	}
	logging.From(ctx).Info("exported record", "record_id", id, "path", path)
	return nil
}

// ExportToStorage renders the record and uploads it under key.
func (s *Service) ExportToStorage(ctx context.Context, id model.RecordID, key string) error {
	if s.storage == nil {
		return goerr.New("no storage configured for remote export")
	}

	record, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to load record for export", goerr.V("id", id))
	}

	w, err := s.storage.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open storage writer", goerr.V("key", key))
	}

	if err := Render(w, record); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize storage upload", goerr.V("key", key))
	}
	logging.From(ctx).Info("exported record", "record_id", id, "key", key)
	return nil
}

// ReadFromStorage returns a previously exported document, so an upload can
// be checked without leaving the CLI.
func (s *Service) ReadFromStorage(ctx context.Context, key string) ([]byte, error) {
	if s.storage == nil {
		return nil, goerr.New("no storage configured for remote export")
	}

	r, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open storage reader", goerr.V("key", key))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read exported document", goerr.V("key", key))
	}
	return data, nil
}

// Render writes the markdown document for a record.
func Render(w io.Writer, record *model.Record) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Fact-check report: %s\n\n", record.ID)
	fmt.Fprintf(&b, "- Created: %s\n", record.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Risk snapshot: %s (score=%.2f, confidence=%.2f)\n",
		record.Snapshot.Label, record.Snapshot.Score, record.Snapshot.Confidence)
	fmt.Fprintf(&b, "- Verdict: %s (score=%.2f)\n", record.Report.RiskLabel, record.Report.RiskScore)
	if record.Report.DetectedScenario != "" {
		fmt.Fprintf(&b, "- Detected scenario: %s\n", record.Report.DetectedScenario)
	}

	b.WriteString("\n## Input\n\n")
	b.WriteString("> " + strings.ReplaceAll(record.InputText, "\n", "\n> ") + "\n")

	if record.Report.Summary != "" {
		b.WriteString("\n## Summary\n\n")
		b.WriteString(record.Report.Summary + "\n")
	}

	if len(record.Snapshot.Reasons) > 0 {
		b.WriteString("\n## Risk snapshot reasons\n\n")
		for _, r := range record.Snapshot.Reasons {
			b.WriteString("- " + r + "\n")
		}
	}

	if len(record.Report.SuspiciousPoints) > 0 {
		b.WriteString("\n## Suspicious points\n\n")
		for _, p := range record.Report.SuspiciousPoints {
			b.WriteString("- " + p + "\n")
		}
	}

	if len(record.Report.ClaimReports) > 0 {
		b.WriteString("\n## Claims\n\n")
		for i, cr := range record.Report.ClaimReports {
			fmt.Fprintf(&b, "### Claim %d: %s\n\n", i+1, cr.Claim.Text)
			fmt.Fprintf(&b, "Verdict: **%s**\n\n", cr.Verdict)
			for _, ev := range cr.Evidences {
				title := ev.Title
				if title == "" {
					title = ev.URL
				}
				fmt.Fprintf(&b, "- [%s](%s) — stance: %s, confidence: %.2f\n",
					title, ev.URL, ev.Stance, ev.AlignmentConfidence)
			}
			b.WriteString("\n")
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return goerr.Wrap(err, "failed to write export document")
	}
	return nil
}
