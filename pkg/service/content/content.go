// Package content drafts response material from a completed analysis:
// clarification statements, FAQ entries, and platform publishing scripts.
// Each generator tries the model first and falls back to deterministic
// templates when no model is configured or the call fails, so the feature
// degrades instead of erroring.
package content

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/m-mizutani/truthcast/pkg/adapter"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/service/stages"
	"github.com/m-mizutani/truthcast/pkg/utils/logging"
)

//go:embed prompt/clarification.md
var clarificationPrompt string

//go:embed prompt/faq.md
var faqPrompt string

//go:embed prompt/scripts.md
var scriptsPrompt string

const (
	shortMaxRunes  = 150
	mediumMaxRunes = 400
	longMaxRunes   = 800

	DefaultFAQCount = 5
)

// Generator drafts response content from a record.
type Generator interface {
	Clarification(ctx context.Context, record *model.Record, style model.ClarificationStyle) (*model.Clarification, error)
	FAQ(ctx context.Context, record *model.Record, count int) ([]model.FAQItem, error)
	PlatformScripts(ctx context.Context, record *model.Record, clarification *model.Clarification, platforms []model.Platform) ([]model.PlatformScript, error)
}

// Drafter implements Generator over the Gemini adapter. A nil gemini skips
// the model entirely and drafts from templates.
type Drafter struct {
	gemini adapter.Gemini
}

func New(gemini adapter.Gemini) *Drafter {
	return &Drafter{gemini: gemini}
}

func (d *Drafter) Clarification(ctx context.Context, record *model.Record, style model.ClarificationStyle) (*model.Clarification, error) {
	if d.gemini != nil {
		input := map[string]any{
			"text":           record.InputText,
			"report":         record.Report,
			"style":          style,
			"style_guidance": styleGuidance(style),
		}
		var c model.Clarification
		err := stages.GenerateJSON(ctx, d.gemini, clarificationPrompt, input, &c)
		if err == nil && c.Short != "" && c.Medium != "" && c.Long != "" {
			c.Short = clip(c.Short, shortMaxRunes)
			c.Medium = clip(c.Medium, mediumMaxRunes)
			c.Long = clip(c.Long, longMaxRunes)
			return &c, nil
		}
		if err != nil {
			logging.From(ctx).Warn("clarification model call failed, drafting from template", "error", err)
		}
	}
	return TemplateClarification(record, style), nil
}

func (d *Drafter) FAQ(ctx context.Context, record *model.Record, count int) ([]model.FAQItem, error) {
	if count <= 0 {
		count = DefaultFAQCount
	}

	if d.gemini != nil {
		input := map[string]any{
			"text":   record.InputText,
			"report": record.Report,
			"count":  count,
		}
		var items []model.FAQItem
		err := stages.GenerateJSON(ctx, d.gemini, faqPrompt, input, &items)
		if err == nil && len(items) > 0 {
			if len(items) > count {
				items = items[:count]
			}
			return items, nil
		}
		if err != nil {
			logging.From(ctx).Warn("faq model call failed, drafting from template", "error", err)
		}
	}
	return TemplateFAQ(record, count), nil
}

func (d *Drafter) PlatformScripts(ctx context.Context, record *model.Record, clarification *model.Clarification, platforms []model.Platform) ([]model.PlatformScript, error) {
	if len(platforms) == 0 {
		platforms = model.DefaultPlatforms()
	}
	if clarification == nil {
		clarification = TemplateClarification(record, model.StyleNeutral)
	}

	if d.gemini != nil {
		input := map[string]any{
			"clarification": clarification,
			"risk_label":    record.Report.RiskLabel,
			"scenario":      record.Report.DetectedScenario,
			"platforms":     platformRequirements(platforms),
		}
		var scripts []model.PlatformScript
		err := stages.GenerateJSON(ctx, d.gemini, scriptsPrompt, input, &scripts)
		if err == nil && len(scripts) > 0 {
			return completeScripts(scripts, platforms, clarification), nil
		}
		if err != nil {
			logging.From(ctx).Warn("platform script model call failed, drafting from template", "error", err)
		}
	}

	out := make([]model.PlatformScript, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, templateScript(p, clarification))
	}
	return out, nil
}

// completeScripts keeps the model's scripts for requested platforms and
// fills any platform the model skipped with a template.
func completeScripts(scripts []model.PlatformScript, platforms []model.Platform, clarification *model.Clarification) []model.PlatformScript {
	requested := map[model.Platform]bool{}
	for _, p := range platforms {
		requested[p] = true
	}

	covered := map[model.Platform]bool{}
	out := make([]model.PlatformScript, 0, len(platforms))
	for _, s := range scripts {
		if requested[s.Platform] && !covered[s.Platform] {
			covered[s.Platform] = true
			out = append(out, s)
		}
	}
	for _, p := range platforms {
		if !covered[p] {
			out = append(out, templateScript(p, clarification))
		}
	}
	return out
}

func styleGuidance(style model.ClarificationStyle) string {
	switch style {
	case model.StyleFormal:
		return "formal and precise, citing authoritative sources, suitable for an official release"
	case model.StyleFriendly:
		return "warm and conversational, easy to understand, suitable for social media"
	default:
		return "neutral and factual, balanced, avoiding emotive phrasing"
	}
}

// platformSpec describes one publishing target for prompts and templates.
type platformSpec struct {
	name     string
	limit    string
	features []string
	tips     []string
	readTime string
}

var platformSpecs = map[model.Platform]platformSpec{
	model.PlatformWeibo: {
		name:     "Weibo",
		limit:    "280 characters",
		features: []string{"hashtags", "repost-friendly", "conversational"},
		tips:     []string{"Post in the morning or evening commute window", "Attach 1-3 images", "Reply to early comments"},
		readTime: "30 seconds",
	},
	model.PlatformWeChat: {
		name:     "WeChat official account",
		limit:    "1000 characters",
		features: []string{"long-form layout", "quotable blocks", "images between sections"},
		tips:     []string{"Lead with a question or a number in the title", "Break the body into short sections"},
		readTime: "2 minutes",
	},
	model.PlatformShortVideo: {
		name:     "Short video voiceover",
		limit:    "90 seconds",
		features: []string{"hook in the first 3 seconds", "core message", "closing call to action"},
		tips:     []string{"Keep captions large and readable", "Hold the key finding on screen"},
		readTime: "60 seconds",
	},
	model.PlatformNews: {
		name:     "Press release",
		limit:    "800 characters",
		features: []string{"inverted pyramid", "formal and objective", "quotable by outlets"},
		tips:     []string{"Put the finding in the lede", "Offer a contact for follow-up"},
		readTime: "3 minutes",
	},
	model.PlatformOfficial: {
		name:     "Official statement",
		limit:    "600 characters",
		features: []string{"formal register", "title, body, signature", "compliance reviewed"},
		tips:     []string{"Route through legal review before publishing", "Keep a signed copy on record"},
		readTime: "2 minutes",
	},
	model.PlatformXiaohongshu: {
		name:     "Xiaohongshu",
		limit:    "500 characters",
		features: []string{"catchy title", "light emoji use", "personal tone"},
		tips:     []string{"Open the title with a question", "Use 3-5 tags"},
		readTime: "1 minute",
	},
	model.PlatformDouyin: {
		name:     "Douyin",
		limit:    "60 seconds",
		features: []string{"strong 3-second hook", "fast pace", "emotive delivery"},
		tips:     []string{"The first 3 seconds decide retention", "Use large captions"},
		readTime: "60 seconds",
	},
	model.PlatformKuaishou: {
		name:     "Kuaishou",
		limit:    "90 seconds",
		features: []string{"down-to-earth tone", "direct address", "comment prompts"},
		tips:     []string{"Open with a question to the viewer", "Close by asking for comments"},
		readTime: "90 seconds",
	},
	model.PlatformBilibili: {
		name:     "Bilibili",
		limit:    "180 seconds",
		features: []string{"deeper treatment", "cite data and sources", "2-3 minute script"},
		tips:     []string{"Open with the puzzle, not the answer", "Name the sources on screen"},
		readTime: "180 seconds",
	},
}

// platformRequirements renders the prompt input describing each target.
func platformRequirements(platforms []model.Platform) []map[string]any {
	out := make([]map[string]any, 0, len(platforms))
	for _, p := range platforms {
		spec := platformSpecs[p]
		out = append(out, map[string]any{
			"platform": p,
			"name":     spec.name,
			"limit":    spec.limit,
			"features": spec.features,
			"tips":     spec.tips,
		})
	}
	return out
}

// TemplateClarification drafts a clarification from the record alone. It
// backs the model path and serves callers that need a clarification without
// triggering a model call.
func TemplateClarification(record *model.Record, style model.ClarificationStyle) *model.Clarification {
	report := record.Report

	var opener string
	switch style {
	case model.StyleFormal:
		opener = "Following a formal review, "
	case model.StyleFriendly:
		opener = "We looked into this for you. "
	default:
		opener = "After verification, "
	}

	short := fmt.Sprintf("%sthis information was assessed as %q.", opener, report.RiskLabel)
	if len(report.SuspiciousPoints) > 0 {
		short += " Main concern: " + clip(report.SuspiciousPoints[0], 60) + "."
	}
	short += " Please rely on official channels for updates."

	var medium strings.Builder
	fmt.Fprintf(&medium, "%sthe circulating information was assessed as %q (score %.2f).", opener, report.RiskLabel, report.RiskScore)
	for _, point := range firstN(report.SuspiciousPoints, 2) {
		medium.WriteString(" Concern: " + point + ".")
	}
	medium.WriteString(" Do not repost unverified versions; cite an authoritative source when referring to this topic.")

	var long strings.Builder
	long.WriteString("Assessment\n\n")
	fmt.Fprintf(&long, "The circulating information was assessed as %q with a risk score of %.2f.\n", report.RiskLabel, report.RiskScore)
	if report.Summary != "" {
		long.WriteString("\nFindings\n\n")
		long.WriteString(report.Summary + "\n")
	}
	if len(report.SuspiciousPoints) > 0 {
		long.WriteString("\nPoints of concern\n\n")
		for i, point := range report.SuspiciousPoints {
			fmt.Fprintf(&long, "%d. %s\n", i+1, point)
		}
	}
	long.WriteString("\nGuidance\n\n")
	long.WriteString("Please rely on information published through official channels. This statement will be updated if authoritative new evidence emerges.")

	return &model.Clarification{
		Short:  clip(short, shortMaxRunes),
		Medium: clip(medium.String(), mediumMaxRunes),
		Long:   clip(long.String(), longMaxRunes),
	}
}

// TemplateFAQ drafts FAQ entries from the record alone.
func TemplateFAQ(record *model.Record, count int) []model.FAQItem {
	if count <= 0 {
		count = DefaultFAQCount
	}
	report := record.Report

	items := []model.FAQItem{{
		Question: "Is this information accurate?",
		Answer: fmt.Sprintf("Our assessment rates it %q (score %.2f). Please rely on official channels for confirmation.",
			report.RiskLabel, report.RiskScore),
		Category: "core",
	}}

	for _, point := range firstN(report.SuspiciousPoints, 2) {
		items = append(items, model.FAQItem{
			Question: fmt.Sprintf("What about %q?", clip(point, 40)),
			Answer:   "Verification flagged this point: " + point + ". Watch for an official statement before drawing conclusions.",
			Category: "detail",
		})
	}

	for i, cr := range report.ClaimReports {
		if i >= 2 {
			break
		}
		answer := fmt.Sprintf("This claim was assessed as %q.", cr.Verdict)
		if len(cr.Evidences) > 0 && cr.Evidences[0].Title != "" {
			answer += " See: " + cr.Evidences[0].Title + "."
		}
		items = append(items, model.FAQItem{
			Question: fmt.Sprintf("Is it true that %q?", clip(cr.Claim.Text, 50)),
			Answer:   answer,
			Category: "detail",
		})
	}

	items = append(items, model.FAQItem{
		Question: "Where can I find reliable updates?",
		Answer:   "Follow official publication channels such as government sites and established news organizations. Avoid reposting from unidentified sources.",
		Category: "background",
	})

	if len(items) > count {
		items = items[:count]
	}
	return items
}

func templateScript(platform model.Platform, c *model.Clarification) model.PlatformScript {
	spec := platformSpecs[platform]
	script := model.PlatformScript{
		Platform: platform,
		Tips:     spec.tips,
		ReadTime: spec.readTime,
	}

	switch platform {
	case model.PlatformWeibo:
		script.Content = clip(c.Short, 280)
		script.Hashtags = []string{"#FactCheck", "#Debunked"}
	case model.PlatformWeChat:
		script.Content = clip(c.Long, 1000)
	case model.PlatformShortVideo:
		script.Content = "[Hook] Before you share this, hear the facts.\n[Body] " + c.Short + "\n[Close] Check official channels before reposting."
	case model.PlatformNews:
		script.Content = "Press release\n\n" + clip(c.Long, 800)
	case model.PlatformOfficial:
		script.Content = "Official statement\n\n" + clip(c.Long, 600) + "\n\nEnd of statement."
	case model.PlatformXiaohongshu:
		script.Content = "The facts, checked.\n\n" + clip(c.Medium, 500)
		script.Hashtags = []string{"#factcheck", "#truth"}
	case model.PlatformDouyin:
		script.Content = "[Hook] Is this post actually true?\n[Body] " + c.Short + "\n[Close] Follow official sources. Don't spread what you can't verify."
	case model.PlatformKuaishou:
		script.Content = "[Hook] Someone sends you this. What do you say?\n[Body] " + c.Short + "\n[Close] Tell me in the comments what you think."
	case model.PlatformBilibili:
		script.Content = "[Hook] Let's take this claim apart.\n\n" + clip(c.Long, 1200) + "\n\n[Close] What do you think? Join the discussion."
	default:
		script.Content = c.Medium
	}
	return script
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
