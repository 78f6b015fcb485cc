package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kardexlab/kardex/internal/casebook"
	"github.com/kardexlab/kardex/internal/lifecycle"
)

func TestParseNumberedList(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "dot style",
			text: "1. ¿Cuándo ocurre la falla?\n2. ¿Qué se intentó?",
			want: []string{"¿Cuándo ocurre la falla?", "¿Qué se intentó?"},
		},
		{
			name: "mixed delimiters",
			text: "1) primera\n2- segunda\n 3. tercera",
			want: []string{"primera", "segunda", "tercera"},
		},
		{
			name: "surrounding prose ignored",
			text: "Aquí van las preguntas:\n1. una\nGracias.",
			want: []string{"una"},
		},
		{
			name: "unnumbered text falls back to single item",
			text: "el modelo ignoró el formato",
			want: []string{"el modelo ignoró el formato"},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseNumberedList(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("parseNumberedList(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("item[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFormatCasesForPrompt(t *testing.T) {
	cases := []casebook.SimilarCase{
		{
			Content:   "cuerpo del caso uno",
			Relevance: 0.91,
			Metadata:  casebook.Metadata{Version: "SOLDADURA_v1.0", Category: "SOLDADURA"},
		},
		{Content: "cuerpo dos", Relevance: 0.72},
		{Content: "cuerpo tres", Relevance: 0.65},
	}

	out := formatCasesForPrompt(cases, 2)
	if !strings.Contains(out, "Case 1 (relevance 91%)") {
		t.Errorf("missing case header: %q", out)
	}
	if !strings.Contains(out, "Version: SOLDADURA_v1.0") {
		t.Errorf("missing version line: %q", out)
	}
	if strings.Contains(out, "cuerpo tres") {
		t.Error("maxCases not applied")
	}
}

func TestFormatCasesForPromptTruncation(t *testing.T) {
	long := strings.Repeat("x", 2000)
	out := formatCasesForPrompt([]casebook.SimilarCase{{Content: long, Relevance: 0.8}}, 0)
	if len(out) >= 2000 {
		t.Errorf("content not truncated, len = %d", len(out))
	}
	if !strings.Contains(out, "...") {
		t.Error("truncation marker missing")
	}
}

func TestTruncateRuneBoundary(t *testing.T) {
	// 1 ASCII byte followed by 3-byte runes puts the cut point mid-rune.
	long := "a" + strings.Repeat("€", 600)
	got := truncate(long, 1500)

	if !utf8.ValidString(got) {
		t.Error("truncated string is not valid UTF-8")
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncation marker missing")
	}
	if len(got) > 1503 {
		t.Errorf("len = %d, want at most 1503", len(got))
	}

	if short := "texto corto"; truncate(short, 1500) != short {
		t.Error("short string must pass through unchanged")
	}
}

func TestFormatReportsForPrompt(t *testing.T) {
	if got := formatReportsForPrompt(nil); !strings.Contains(got, "no reports") {
		t.Errorf("empty thread = %q", got)
	}

	out := formatReportsForPrompt([]lifecycle.Report{
		{Author: "jlopez", Content: "grieta visible en el sello"},
		{Content: "sin autor registrado"},
	})
	if !strings.Contains(out, "- jlopez: grieta visible en el sello") {
		t.Errorf("missing authored report: %q", out)
	}
	if !strings.Contains(out, "- anonymous: sin autor registrado") {
		t.Errorf("missing anonymous report: %q", out)
	}
}

func TestHasRelevantCaseBoundary(t *testing.T) {
	a := &Agent{cfg: Config{ReuseThreshold: 0.7}}

	if a.hasRelevantCase([]casebook.SimilarCase{{Relevance: 0.7}}) {
		t.Error("relevance exactly at threshold must not trigger reuse")
	}
	if !a.hasRelevantCase([]casebook.SimilarCase{{Relevance: 0.70001}}) {
		t.Error("relevance above threshold must trigger reuse")
	}
	if a.hasRelevantCase(nil) {
		t.Error("no cases must not trigger reuse")
	}
}
