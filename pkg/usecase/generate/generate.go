// Package generate turns a persisted analysis record into response
// material: a clarification in three lengths, FAQ entries, and publishing
// scripts adapted per platform.
package generate

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/repository"
	"github.com/m-mizutani/truthcast/pkg/service/admission"
	"github.com/m-mizutani/truthcast/pkg/service/content"
	"github.com/m-mizutani/truthcast/pkg/utils/logging"
)

// Service drafts content from stored records. Generator calls count as
// expensive inference and run under the shared admission controller.
type Service struct {
	repo      repository.Repository
	generator content.Generator
	admission *admission.Controller
}

// New creates a content generation service. Pass the process-wide admission
// controller; nil falls back to a private default-size one.
func New(repo repository.Repository, generator content.Generator, ctrl *admission.Controller) *Service {
	if ctrl == nil {
		ctrl = admission.New(admission.DefaultSlots)
	}
	return &Service{repo: repo, generator: generator, admission: ctrl}
}

// Request selects what to draft and how.
type Request struct {
	Style      model.ClarificationStyle
	Platforms  []model.Platform
	IncludeFAQ bool
	FAQCount   int
}

// Full drafts the complete bundle: clarification, optional FAQ, and one
// script per requested platform.
func (s *Service) Full(ctx context.Context, id model.RecordID, req Request) (*model.ContentBundle, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = model.DefaultPlatforms()
	}
	style := req.Style
	if style == "" {
		style = model.StyleNeutral
	}

	clarification, err := admission.InSlot(ctx, s.admission, func(ctx context.Context) (*model.Clarification, error) {
		return s.generator.Clarification(ctx, record, style)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "clarification generation failed", goerr.V("record_id", id))
	}

	var faq []model.FAQItem
	if req.IncludeFAQ {
		faq, err = admission.InSlot(ctx, s.admission, func(ctx context.Context) ([]model.FAQItem, error) {
			return s.generator.FAQ(ctx, record, req.FAQCount)
		})
		if err != nil {
			return nil, goerr.Wrap(err, "faq generation failed", goerr.V("record_id", id))
		}
	}

	scripts, err := admission.InSlot(ctx, s.admission, func(ctx context.Context) ([]model.PlatformScript, error) {
		return s.generator.PlatformScripts(ctx, record, clarification, platforms)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "platform script generation failed", goerr.V("record_id", id))
	}

	logging.From(ctx).Info("content bundle generated",
		"record_id", id,
		"style", style,
		"platforms", len(platforms),
		"faq", len(faq),
	)

	return &model.ContentBundle{
		Clarification: *clarification,
		FAQ:           faq,
		Scripts:       scripts,
		GeneratedAt:   time.Now().UTC(),
		BasedOn: model.ContentBasis{
			RecordID:   record.ID,
			RiskLabel:  record.Report.RiskLabel,
			Scenario:   record.Report.DetectedScenario,
			ClaimCount: len(record.Report.ClaimReports),
			Style:      style,
			Platforms:  platforms,
		},
	}, nil
}

// Clarification drafts only the clarification.
func (s *Service) Clarification(ctx context.Context, id model.RecordID, style model.ClarificationStyle) (*model.Clarification, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if style == "" {
		style = model.StyleNeutral
	}
	return admission.InSlot(ctx, s.admission, func(ctx context.Context) (*model.Clarification, error) {
		return s.generator.Clarification(ctx, record, style)
	})
}

// FAQ drafts only the FAQ entries.
func (s *Service) FAQ(ctx context.Context, id model.RecordID, count int) ([]model.FAQItem, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return admission.InSlot(ctx, s.admission, func(ctx context.Context) ([]model.FAQItem, error) {
		return s.generator.FAQ(ctx, record, count)
	})
}

// PlatformScripts drafts only the platform scripts. A caller that already
// holds a clarification passes it to avoid regenerating one; with nil the
// generator derives a template clarification from the record.
func (s *Service) PlatformScripts(ctx context.Context, id model.RecordID, clarification *model.Clarification, platforms []model.Platform) ([]model.PlatformScript, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return admission.InSlot(ctx, s.admission, func(ctx context.Context) ([]model.PlatformScript, error) {
		return s.generator.PlatformScripts(ctx, record, clarification, platforms)
	})
}

func (s *Service) load(ctx context.Context, id model.RecordID) (*model.Record, error) {
	record, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load record for content generation", goerr.V("id", id))
	}
	return record, nil
}
