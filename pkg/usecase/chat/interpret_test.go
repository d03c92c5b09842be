package chat_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/usecase/chat"
)

func TestInterpretListLimit(t *testing.T) {
	inv := chat.Interpret("list 20")
	gt.Equal(t, inv.Name, model.ToolList)
	gt.Equal(t, inv.Limit, 20)

	inv = chat.Interpret("list")
	gt.Equal(t, inv.Name, model.ToolList)
	gt.Equal(t, inv.Limit, chat.DefaultListLimit)

	inv = chat.Interpret("list abc")
	gt.Equal(t, inv.Name, model.ToolList)
	gt.Equal(t, inv.Limit, chat.DefaultListLimit)

	inv = chat.Interpret("list limit=7")
	gt.Equal(t, inv.Limit, 7)
}

func TestInterpretSlashAndBareEquivalent(t *testing.T) {
	bare := chat.Interpret("list 20")
	slashed := chat.Interpret("/list 20")
	gt.Equal(t, bare, slashed)

	gt.Equal(t, chat.Interpret("why abc-123"), chat.Interpret("/why abc-123"))
}

func TestInterpretAliases(t *testing.T) {
	gt.Equal(t, chat.Interpret("explain abc").Name, model.ToolWhy)
	gt.Equal(t, chat.Interpret("history").Name, model.ToolList)
	gt.Equal(t, chat.Interpret("records").Name, model.ToolList)
	gt.Equal(t, chat.Interpret("more").Name, model.ToolMoreEvidence)
}

func TestInterpretWhyRecordID(t *testing.T) {
	inv := chat.Interpret("why 0c2f8a9e")
	gt.Equal(t, inv.Name, model.ToolWhy)
	gt.Equal(t, inv.RecordID, "0c2f8a9e")

	inv = chat.Interpret("why")
	gt.Equal(t, inv.Name, model.ToolWhy)
	gt.Equal(t, inv.RecordID, "")
}

func TestInterpretRewriteStyle(t *testing.T) {
	inv := chat.Interpret("rewrite friendly")
	gt.Equal(t, inv.Name, model.ToolRewrite)
	gt.Equal(t, inv.Style, "friendly")

	// Bogus styles pass through; normalization happens downstream.
	inv = chat.Interpret("rewrite bogus")
	gt.Equal(t, inv.Style, "bogus")
	gt.Equal(t, chat.NormalizeStyle(inv.Style), "short")

	inv = chat.Interpret("rewrite")
	gt.Equal(t, chat.NormalizeStyle(inv.Style), "short")
}

func TestInterpretExplicitAnalyze(t *testing.T) {
	inv := chat.Interpret("analyze this suspicious claim")
	gt.Equal(t, inv.Name, model.ToolAnalyze)
	gt.Equal(t, inv.Text, "this suspicious claim")

	inv = chat.Interpret("/analyze")
	gt.Equal(t, inv.Name, model.ToolAnalyze)
	gt.Equal(t, inv.Text, "")
}

func TestInterpretLongTextIsAnalyze(t *testing.T) {
	long := strings.Repeat("a viral claim spreading fast ", 10)
	inv := chat.Interpret(long)
	gt.Equal(t, inv.Name, model.ToolAnalyze)
	gt.Equal(t, inv.Text, strings.TrimSpace(long))
}

func TestInterpretShortTextIsHelp(t *testing.T) {
	gt.Equal(t, chat.Interpret("hello there").Name, model.ToolHelp)
	gt.Equal(t, chat.Interpret("").Name, model.ToolHelp)
	gt.Equal(t, chat.Interpret("   ").Name, model.ToolHelp)
}

func TestClampLimit(t *testing.T) {
	gt.Equal(t, chat.ClampLimit(-5), 0)
	gt.Equal(t, chat.ClampLimit(0), 0)
	gt.Equal(t, chat.ClampLimit(10), 10)
	gt.Equal(t, chat.ClampLimit(999), chat.MaxListLimit)
}
