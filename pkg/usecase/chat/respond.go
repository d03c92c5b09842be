package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/repository"
)

// Client-side view paths used in actions and references.
const (
	resultView  = "/result"
	historyView = "/history"
)

const (
	maxReasons           = 5
	maxSuspiciousPoints  = 5
	maxClaimReports      = 3
	maxEvidencesPerClaim = 3
	maxReferences        = 8
)

// Respond assembles the reply for every non-analyze tool. Lookup failures
// (unknown record IDs) come back as in-band messages, not errors; only
// store-level failures propagate.
func (s *Service) Respond(ctx context.Context, inv model.ToolInvocation, contextRecordID string) (*model.ChatMessage, error) {
	switch inv.Name {
	case model.ToolLoadHistory:
		return s.runLoadHistory(ctx, inv.RecordID)
	case model.ToolWhy:
		return s.runWhy(ctx, inv.RecordID)
	case model.ToolList:
		return s.runList(ctx, ClampLimit(inv.Limit))
	case model.ToolMoreEvidence:
		return s.runMoreEvidence(ctx, contextRecordID)
	case model.ToolRewrite:
		return s.runRewrite(ctx, contextRecordID, inv.Style)
	default:
		return buildHelpMessage(), nil
	}
}

// lookup fetches a record, mapping an unknown ID to a deterministic
// not-found message instead of an error.
func (s *Service) lookup(ctx context.Context, id string) (*model.Record, *model.ChatMessage, error) {
	record, err := s.repo.GetRecord(ctx, model.RecordID(id))
	if errors.Is(err, repository.ErrRecordNotFound) {
		return nil, buildNotFoundMessage(id), nil
	}
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load record", goerr.V("id", id))
	}
	return record, nil, nil
}

func buildNotFoundMessage(id string) *model.ChatMessage {
	return &model.ChatMessage{
		Role:    model.RoleAssistant,
		Content: fmt.Sprintf("record not found: %s", id),
		Actions: []model.ChatAction{
			{Kind: model.ActionLink, Label: "Open history", Href: historyView},
		},
		References: []model.ChatReference{},
	}
}

func buildHelpMessage() *model.ChatMessage {
	return &model.ChatMessage{
		Role: model.RoleAssistant,
		Content: strings.Join([]string{
			"Available commands:",
			"- analyze <text>: run the full fact-checking pipeline",
			"- load_history <record_id>: load a saved record into the client context",
			"- why <record_id>: explain how a verdict was reached",
			"- list [N]: show the most recent record IDs (default 10, e.g. list 20)",
			"- more_evidence: suggest next steps to gather more evidence for the current record",
			"- rewrite [short|neutral|friendly]: rewrite the current explanation in another tone",
			"",
			"Record IDs are written to history when an analysis completes;",
			"use list to find one, then load_history <record_id>.",
			"",
			"You can also paste long text directly and it will be analyzed.",
		}, "\n"),
		Actions: []model.ChatAction{
			{Kind: model.ActionLink, Label: "Open results", Href: resultView},
			{Kind: model.ActionLink, Label: "Open history", Href: historyView},
		},
		References: []model.ChatReference{},
	}
}

// buildAnalyzeUsageMessage is returned for an empty analyze payload.
func buildAnalyzeUsageMessage() *model.ChatMessage {
	return &model.ChatMessage{
		Role:    model.RoleAssistant,
		Content: "Usage: analyze <text to check>",
		Actions: []model.ChatAction{
			{Kind: model.ActionLink, Label: "Open results", Href: resultView},
		},
		References: []model.ChatReference{},
	}
}

func recordReference(record *model.Record) model.ChatReference {
	return model.ChatReference{
		Title: fmt.Sprintf("Record: %s", record.ID),
		Href:  historyView,
		Description: fmt.Sprintf("risk: %s (%.2f) · created: %s",
			record.Report.RiskLabel, record.Report.RiskScore,
			record.CreatedAt.Format("2006-01-02 15:04:05")),
	}
}

func isHTTPURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

func (s *Service) runLoadHistory(ctx context.Context, id string) (*model.ChatMessage, error) {
	record, notFound, err := s.lookup(ctx, id)
	if err != nil || notFound != nil {
		return notFound, err
	}

	return &model.ChatMessage{
		Role: model.RoleAssistant,
		Content: "Found the record. Use the command below to load it into the " +
			"client context, then open the results view for the full breakdown.",
		Actions: []model.ChatAction{
			{Kind: model.ActionCommand, Label: "Load into client context", Command: fmt.Sprintf("load_history %s", record.ID)},
			{Kind: model.ActionLink, Label: "Open results", Href: resultView},
		},
		References: []model.ChatReference{recordReference(record)},
		Meta:       map[string]any{"record_id": string(record.ID)},
	}, nil
}

func (s *Service) runWhy(ctx context.Context, id string) (*model.ChatMessage, error) {
	record, notFound, err := s.lookup(ctx, id)
	if err != nil || notFound != nil {
		return notFound, err
	}

	reasons := record.Snapshot.Reasons
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}
	points := record.Report.SuspiciousPoints
	if len(points) > maxSuspiciousPoints {
		points = points[:maxSuspiciousPoints]
	}
	claimReports := record.Report.ClaimReports
	if len(claimReports) > maxClaimReports {
		claimReports = claimReports[:maxClaimReports]
	}

	// The record's own entry occupies reference slot 0; evidence links are
	// appended up to the global cap, http(s)-only, deduplicated by URL.
	refs := []model.ChatReference{recordReference(record)}
	seen := map[string]bool{}
	for _, cr := range claimReports {
		evidences := cr.Evidences
		if len(evidences) > maxEvidencesPerClaim {
			evidences = evidences[:maxEvidencesPerClaim]
		}
		for _, ev := range evidences {
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
				Title:       truncateRunes(title, 80),
				Href:        url,
				Description: fmt.Sprintf("stance: %s · confidence: %.2f", ev.Stance, ev.AlignmentConfidence),
			})
			if len(refs) >= maxReferences {
				break
			}
		}
		if len(refs) >= maxReferences {
			break
		}
	}

	var claimLines []string
	for _, cr := range claimReports {
		claimLines = append(claimLines, fmt.Sprintf("claim: %s → verdict: %s",
			truncateRunes(cr.Claim.Text, 60), cr.Verdict))
	}

	var lines []string
	lines = append(lines, "Explanation: this verdict combines the risk snapshot with the report's claim/evidence alignment.")
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("- Risk snapshot: %s (score=%.2f)", record.Snapshot.Label, record.Snapshot.Score))
	if len(reasons) > 0 {
		lines = append(lines, "  - Trigger reasons:")
		for _, r := range reasons {
			lines = append(lines, "    - "+r)
		}
	}
	lines = append(lines, fmt.Sprintf("- Report: %s (score=%.2f)", record.Report.RiskLabel, record.Report.RiskScore))
	if len(points) > 0 {
		lines = append(lines, "  - Suspicious points:")
		for _, p := range points {
			lines = append(lines, "    - "+p)
		}
	}
	if len(claimLines) > 0 {
		lines = append(lines, "  - Claim-level alignment (excerpt):")
		for _, c := range claimLines {
			lines = append(lines, "    - "+c)
		}
	}
	lines = append(lines, "", "Tip: load this record into the client context and open the results view for the full evidence chain.")

	// Structured blocks mirror the same content for UI rendering.
	var blocks []model.Block
	if len(reasons) > 0 {
		blocks = append(blocks, model.Block{Kind: "section", Title: "Risk snapshot trigger reasons", Items: reasons})
	}
	if len(points) > 0 {
		blocks = append(blocks, model.Block{Kind: "section", Title: "Report suspicious points", Items: points, Collapsed: true})
	}
	if len(claimLines) > 0 {
		blocks = append(blocks, model.Block{Kind: "section", Title: "Claim-level alignment (excerpt)", Items: claimLines, Collapsed: true})
	}
	if len(refs) > 1 {
		blocks = append(blocks, model.Block{
			Kind:      "links",
			Title:     fmt.Sprintf("Evidence links (%d)", len(refs)-1),
			Links:     refs[1:],
			Collapsed: true,
		})
	}

	return &model.ChatMessage{
		Role:    model.RoleAssistant,
		Content: strings.Join(lines, "\n"),
		Actions: []model.ChatAction{
			{Kind: model.ActionCommand, Label: "Load into client context", Command: fmt.Sprintf("load_history %s", record.ID)},
			{Kind: model.ActionCommand, Label: "More evidence", Command: "more_evidence"},
			{Kind: model.ActionCommand, Label: "Rewrite (short)", Command: "rewrite short"},
			{Kind: model.ActionCommand, Label: "Rewrite (neutral)", Command: "rewrite neutral"},
			{Kind: model.ActionCommand, Label: "Rewrite (friendly)", Command: "rewrite friendly"},
			{Kind: model.ActionLink, Label: "Open results", Href: resultView},
			{Kind: model.ActionLink, Label: "Open history", Href: historyView},
		},
		References: refs,
		Meta:       map[string]any{"record_id": string(record.ID), "blocks": blocks},
	}, nil
}

func (s *Service) runList(ctx context.Context, limit int) (*model.ChatMessage, error) {
	rows, err := s.repo.ListRecords(ctx, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list records")
	}

	if len(rows) == 0 {
		return &model.ChatMessage{
			Role: model.RoleAssistant,
			Content: "No records yet.\n\n" +
				"Send `analyze <text>` to run an analysis first, or try again later.",
			Actions: []model.ChatAction{
				{Kind: model.ActionCommand, Label: "Example: start an analysis", Command: "analyze Viral post claims a 100% effective cure, insiders say..."},
				{Kind: model.ActionLink, Label: "Open history", Href: historyView},
			},
			References: []model.ChatReference{},
		}, nil
	}

	lines := []string{fmt.Sprintf("Most recent %d record(s), usable with load_history:", len(rows))}
	for i, row := range rows {
		lines = append(lines, fmt.Sprintf("%d. %s · %s · %s(%.2f)",
			i+1, row.ID, row.CreatedAt.Format("2006-01-02 15:04:05"), row.RiskLabel, row.RiskScore))
		if row.InputPreview != "" {
			lines = append(lines, "   preview: "+row.InputPreview)
		}
	}
	lines = append(lines, "", fmt.Sprintf("Usage: load_history <record_id> (e.g. load_history %s)", rows[0].ID))

	return &model.ChatMessage{
		Role:    model.RoleAssistant,
		Content: strings.Join(lines, "\n"),
		Actions: []model.ChatAction{
			{Kind: model.ActionCommand, Label: "Load most recent record", Command: fmt.Sprintf("load_history %s", rows[0].ID)},
			{Kind: model.ActionLink, Label: "Open history", Href: historyView},
		},
		References: []model.ChatReference{},
	}, nil
}

func (s *Service) runMoreEvidence(ctx context.Context, id string) (*model.ChatMessage, error) {
	record, notFound, err := s.lookup(ctx, id)
	if err != nil || notFound != nil {
		return notFound, err
	}

	return &model.ChatMessage{
		Role: model.RoleAssistant,
		Content: "Suggestions for gathering more evidence:\n" +
			"- Retry the evidence retrieval stage to collect more candidate sources\n" +
			"- Once evidence is refreshed, retry the report stage to update the verdict\n",
		Actions: []model.ChatAction{
			{Kind: model.ActionCommand, Label: "Retry evidence retrieval", Command: "retry evidence"},
			{Kind: model.ActionCommand, Label: "Retry report", Command: "retry report"},
			{Kind: model.ActionLink, Label: "Open results", Href: resultView},
		},
		References: []model.ChatReference{recordReference(record)},
		Meta:       map[string]any{"record_id": string(record.ID)},
	}, nil
}

// NormalizeStyle maps any style token to one of the supported rewrite
// styles, defaulting to short.
func NormalizeStyle(style string) string {
	switch strings.ToLower(strings.TrimSpace(style)) {
	case "neutral":
		return "neutral"
	case "friendly":
		return "friendly"
	default:
		return "short"
	}
}

func (s *Service) runRewrite(ctx context.Context, id, style string) (*model.ChatMessage, error) {
	record, notFound, err := s.lookup(ctx, id)
	if err != nil || notFound != nil {
		return notFound, err
	}

	style = NormalizeStyle(style)

	// Pure templating over already-computed record fields: rewriting never
	// issues a new inference call.
	reasons := record.Snapshot.Reasons
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	points := record.Report.SuspiciousPoints
	if len(points) > 3 {
		points = points[:3]
	}
	label := record.Report.RiskLabel
	score := record.Report.RiskScore

	var content string
	switch style {
	case "friendly":
		content = fmt.Sprintf("Here's the friendly version: our current read is %s (score=%.2f).\n", label, score) +
			"That's based on the risk snapshot triggers plus the suspicious points and evidence alignment from the report.\n"
		if len(points) > 0 {
			content += "Worth keeping an eye on:\n- " + strings.Join(points, "\n- ") + "\n"
		}
		content += "If you'd like me to dig up more sources, just send more_evidence."
	case "neutral":
		content = fmt.Sprintf("Neutral rewrite: overall judgment is %s (score=%.2f).\n", label, score) +
			"Basis: risk snapshot triggers, report suspicious points, and claim/evidence alignment.\n"
		if len(reasons) > 0 {
			content += "Snapshot reasons (excerpt):\n- " + strings.Join(reasons, "\n- ") + "\n"
		}
		if len(points) > 0 {
			content += "Report suspicious points (excerpt):\n- " + strings.Join(points, "\n- ") + "\n"
		}
	default: // short
		content = fmt.Sprintf("Short rewrite: verdict is %s (score=%.2f).\n", label, score)
		if len(reasons) > 0 {
			content += "Snapshot reasons: " + strings.Join(reasons, "; ") + "\n"
		}
		if len(points) > 0 {
			content += "Suspicious points: " + strings.Join(points, "; ") + "\n"
		}
		content += "(Tip: send more_evidence to gather additional sources.)"
	}

	return &model.ChatMessage{
		Role:    model.RoleAssistant,
		Content: content,
		Actions: []model.ChatAction{
			{Kind: model.ActionCommand, Label: "More evidence", Command: "more_evidence"},
			{Kind: model.ActionLink, Label: "Open results", Href: resultView},
		},
		References: []model.ChatReference{recordReference(record)},
		Meta:       map[string]any{"record_id": string(record.ID), "style": style},
	}, nil
}
