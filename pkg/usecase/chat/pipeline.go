package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/service/admission"
	"github.com/m-mizutani/truthcast/pkg/service/cache"
	"github.com/m-mizutani/truthcast/pkg/utils/logging"
)

// runAnalyze drives the five-stage pipeline for one input, streaming stage
// transitions and narration tokens as it goes. A stage failure aborts the
// run with a single error event; success persists a record and emits one
// message event. The caller owns emitter termination.
func (s *Service) runAnalyze(ctx context.Context, text string, emitter *Emitter) {
	logger := logging.From(ctx)

	if strings.TrimSpace(text) == "" {
		emitter.Emit(model.NewMessageEvent(buildAnalyzeUsageMessage()))
		return
	}

	if s.gate != nil {
		reasons, err := s.gate.Check(ctx, text)
		if err != nil {
			emitter.Fail(goerr.Wrap(err, "intake policy evaluation failed"))
			return
		}
		if len(reasons) > 0 {
			logger.Warn("input rejected by intake policy", "reasons", reasons)
			emitter.Emit(model.NewMessageEvent(&model.ChatMessage{
				Role:       model.RoleAssistant,
				Content:    "This input was declined by the intake policy:\n- " + strings.Join(reasons, "\n- "),
				Actions:    []model.ChatAction{},
				References: []model.ChatReference{},
			}))
			return
		}
	}

	snapshot, err := runCachedStage(ctx, s, emitter, model.StageNameRiskSnapshot, s.snapshotCache, text,
		func(ctx context.Context) (*model.RiskSnapshot, error) {
			return s.pipeline.RiskSnapshot(ctx, text)
		})
	if err != nil {
		s.failAnalyze(ctx, emitter, model.StageNameRiskSnapshot, err)
		return
	}
	emitter.Emit(model.NewTokenEvent(fmt.Sprintf("Risk snapshot: %s (score=%.2f)\n", snapshot.Label, snapshot.Score)))
	strategy := snapshot.Strategy

	claims, err := runCachedStage(ctx, s, emitter, model.StageNameClaims, s.generationCache, stageKey(model.StageNameClaims, text),
		func(ctx context.Context) ([]model.Claim, error) {
			return s.pipeline.RunClaims(ctx, text, strategy)
		})
	if err != nil {
		s.failAnalyze(ctx, emitter, model.StageNameClaims, err)
		return
	}
	emitter.Emit(model.NewTokenEvent(fmt.Sprintf("Extracted %d checkworthy claim(s)\n", len(claims))))

	// Evidence retrieval is live by nature and never cached.
	evidences, err := runCachedStage(ctx, s, emitter, model.StageNameEvidenceSearch, nil, "",
		func(ctx context.Context) ([]model.Evidence, error) {
			return s.pipeline.RunEvidence(ctx, text, claims, strategy)
		})
	if err != nil {
		s.failAnalyze(ctx, emitter, model.StageNameEvidenceSearch, err)
		return
	}
	emitter.Emit(model.NewTokenEvent(fmt.Sprintf("Retrieved %d evidence candidate(s)\n", len(evidences))))

	aligned, err := runCachedStage(ctx, s, emitter, model.StageNameEvidenceAlign, s.generationCache, stageKey(model.StageNameEvidenceAlign, text),
		func(ctx context.Context) ([]model.AlignedEvidence, error) {
			return s.pipeline.AlignEvidences(ctx, claims, evidences, strategy)
		})
	if err != nil {
		s.failAnalyze(ctx, emitter, model.StageNameEvidenceAlign, err)
		return
	}
	emitter.Emit(model.NewTokenEvent(fmt.Sprintf("Aligned %d evidence item(s) to claims\n", len(aligned))))

	report, err := runCachedStage(ctx, s, emitter, model.StageNameReport, s.generationCache, stageKey(model.StageNameReport, text),
		func(ctx context.Context) (*model.Report, error) {
			return s.pipeline.RunReport(ctx, text, claims, aligned, strategy)
		})
	if err != nil {
		s.failAnalyze(ctx, emitter, model.StageNameReport, err)
		return
	}

	record := model.NewRecord(text, *snapshot, *report)
	if err := s.repo.PutRecord(ctx, record); err != nil {
		emitter.Fail(goerr.Wrap(err, "failed to persist record"))
		return
	}
	logger.Info("analysis completed",
		"record_id", record.ID,
		"risk_label", report.RiskLabel,
		"claims", len(claims),
		"aligned", len(aligned),
	)

	emitter.Emit(model.NewMessageEvent(buildAnalyzeSummary(record, len(claims), len(aligned))))
}

// failAnalyze marks the stage failed and reports a single in-band error.
// Stage errors are never fatal to the stream: the terminal done still
// follows via the caller's Close. The wrapped error keeps its tags for
// non-streaming callers.
func (s *Service) failAnalyze(ctx context.Context, emitter *Emitter, stage string, err error) {
	logging.From(ctx).Error("pipeline stage failed", "stage", stage, "error", err)
	emitter.Emit(model.NewStageEvent(stage, model.StageFailed))
	emitter.Fail(goerr.Wrap(err, "analysis failed at "+stage))
}

// stageKey qualifies a cache key with the stage name, so stages sharing a
// cache never collide on the same input text.
func stageKey(stage, text string) string {
	return stage + "\n" + text
}

// runCachedStage runs one stage with stage events around it. The cache is
// consulted before admission so hits cost nothing; passing a nil cache makes
// the stage uncacheable. fn runs with an admission slot held.
func runCachedStage[T any](ctx context.Context, s *Service, emitter *Emitter, stage string, c *cache.Cache, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	emitter.Emit(model.NewStageEvent(stage, model.StageRunning))

	if c != nil {
		if v, ok := c.Get(key); ok {
			if cached, ok := v.(T); ok {
				logging.From(ctx).Debug("cache hit", "cache", c.Name(), "stage", stage)
				emitter.Emit(model.NewStageEvent(stage, model.StageDone))
				return cached, nil
			}
		}
	}

	result, err := admission.InSlot(ctx, s.admission, fn)
	if err != nil {
		var zero T
		return zero, err
	}

	if c != nil {
		c.Set(key, result)
	}
	emitter.Emit(model.NewStageEvent(stage, model.StageDone))
	return result, nil
}

// buildAnalyzeSummary assembles the final message for a completed run:
// verdict line, counts, follow-up actions, and up to five of the report's
// evidence links after the record's own reference.
func buildAnalyzeSummary(record *model.Record, claimCount, alignedCount int) *model.ChatMessage {
	refs := []model.ChatReference{recordReference(record)}
	seen := map[string]bool{}
	for _, cr := range record.Report.ClaimReports {
		for _, ev := range cr.Evidences {
			url := strings.TrimSpace(ev.URL)
			if !isHTTPURL(url) || seen[url] {
				continue
			}
			seen[url] = true
			title := strings.TrimSpace(ev.Title)
			if title == "" {
				title = url
			}
			refs = append(refs, model.ChatReference{
				Title: truncateRunes(title, 80),
				Href:  url,
			})
			if len(refs) >= 6 {
				break
			}
		}
		if len(refs) >= 6 {
			break
		}
	}

	content := strings.Join([]string{
		"Analysis complete.",
		"",
		fmt.Sprintf("- Risk snapshot: %s (score=%.2f)", record.Snapshot.Label, record.Snapshot.Score),
		fmt.Sprintf("- Claims extracted: %d · evidence aligned: %d", claimCount, alignedCount),
		fmt.Sprintf("- Report verdict: %s (score=%.2f)", record.Report.RiskLabel, record.Report.RiskScore),
		fmt.Sprintf("- Record ID: %s", record.ID),
		"",
		record.Report.Summary,
	}, "\n")

	return &model.ChatMessage{
		Role:    model.RoleAssistant,
		Content: content,
		Actions: []model.ChatAction{
			{Kind: model.ActionCommand, Label: "Load into client context", Command: fmt.Sprintf("load_history %s", record.ID)},
			{Kind: model.ActionCommand, Label: "Why this verdict?", Command: fmt.Sprintf("why %s", record.ID)},
			{Kind: model.ActionLink, Label: "Open results", Href: resultView},
			{Kind: model.ActionLink, Label: "Open history", Href: historyView},
		},
		References: refs,
		Meta:       map[string]any{"record_id": string(record.ID)},
	}
}
