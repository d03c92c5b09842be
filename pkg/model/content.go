package model

import (
	"strings"
	"time"
)

// ClarificationStyle selects the register of a clarification draft.
type ClarificationStyle string

const (
	StyleFormal   ClarificationStyle = "formal"
	StyleNeutral  ClarificationStyle = "neutral"
	StyleFriendly ClarificationStyle = "friendly"
)

// NormalizeClarificationStyle maps free-form style input to a known style,
// defaulting to neutral.
func NormalizeClarificationStyle(s string) ClarificationStyle {
	switch ClarificationStyle(strings.ToLower(strings.TrimSpace(s))) {
	case StyleFormal:
		return StyleFormal
	case StyleFriendly:
		return StyleFriendly
	default:
		return StyleNeutral
	}
}

// Platform is a publishing target for generated scripts.
type Platform string

const (
	PlatformWeibo       Platform = "weibo"
	PlatformWeChat      Platform = "wechat"
	PlatformShortVideo  Platform = "short_video"
	PlatformNews        Platform = "news"
	PlatformOfficial    Platform = "official"
	PlatformXiaohongshu Platform = "xiaohongshu"
	PlatformDouyin      Platform = "douyin"
	PlatformKuaishou    Platform = "kuaishou"
	PlatformBilibili    Platform = "bilibili"
)

// Platforms lists every supported publishing target.
func Platforms() []Platform {
	return []Platform{
		PlatformWeibo,
		PlatformWeChat,
		PlatformShortVideo,
		PlatformNews,
		PlatformOfficial,
		PlatformXiaohongshu,
		PlatformDouyin,
		PlatformKuaishou,
		PlatformBilibili,
	}
}

// DefaultPlatforms are the targets used when a request names none.
func DefaultPlatforms() []Platform {
	return []Platform{PlatformWeibo, PlatformWeChat, PlatformShortVideo}
}

// ParsePlatform validates a platform identifier.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms() {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Clarification is a statement drafted in three lengths: short for quick
// reposting, medium for feeds, long for a formal publication.
type Clarification struct {
	Short  string `json:"short"`
	Medium string `json:"medium"`
	Long   string `json:"long"`
}

// FAQItem is one generated question and answer. Category is one of core,
// detail, or background.
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// PlatformScript is publishing copy adapted to one platform.
type PlatformScript struct {
	Platform Platform `json:"platform"`
	Content  string   `json:"content"`
	Tips     []string `json:"tips,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	ReadTime string   `json:"estimated_read_time,omitempty"`
}

// ContentBasis records what a content bundle was derived from.
type ContentBasis struct {
	RecordID   RecordID           `json:"record_id"`
	RiskLabel  string             `json:"risk_label"`
	Scenario   string             `json:"scenario,omitempty"`
	ClaimCount int                `json:"claim_count"`
	Style      ClarificationStyle `json:"style"`
	Platforms  []Platform         `json:"platforms"`
}

// ContentBundle is the full response-material set for one record.
type ContentBundle struct {
	Clarification Clarification    `json:"clarification"`
	FAQ           []FAQItem        `json:"faq,omitempty"`
	Scripts       []PlatformScript `json:"platform_scripts"`
	GeneratedAt   time.Time        `json:"generated_at"`
	BasedOn       ContentBasis     `json:"based_on"`
}
