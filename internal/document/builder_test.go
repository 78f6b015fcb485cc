package document

import (
	"strings"
	"testing"
	"time"

	"github.com/kardexlab/kardex/internal/lifecycle"
)

func sampleInput() Input {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return Input{
		Incidence: lifecycle.Incidence{
			ID:          "inc-1",
			Title:       "Porosidad en cordones",
			Description: "Porosidad excesiva en cordones de soldadura en la línea 3",
			Category:    "SOLDADURA",
			CreatedAt:   created,
		},
		Reports: []lifecycle.Report{
			{Author: "mgarcia", Content: "El gas de protección estaba bajo", CreatedAt: created.Add(time.Hour)},
			{Content: "Se observó humedad en el electrodo", CreatedAt: created.Add(2 * time.Hour)},
		},
		Solution:          "Ajustar el caudal de gas a 15 L/min y secar electrodos",
		RootCause:         "Caudal de gas insuficiente",
		PreventiveActions: "Verificar caudal al inicio de cada turno",
		VersionStr:        "SOLDADURA_v1.2",
		ResolvedBy:        "jlopez",
		ResolvedAt:        created.Add(24 * time.Hour),
	}
}

func TestRenderSections(t *testing.T) {
	doc := Render(sampleInput())

	wantFragments := []string{
		"RESOLVED CASE: SOLDADURA_v1.2",
		"IDENTIFICATION",
		"Title: Porosidad en cordones",
		"Category: SOLDADURA",
		"Resolved by: jlopez",
		"PROBLEM DESCRIPTION",
		"REPORTER CONTRIBUTIONS",
		"mgarcia",
		"anonymous", // report without author
		"ROOT CAUSE ANALYSIS",
		"APPLIED SOLUTION",
		"PREVENTIVE ACTIONS",
		"KEYWORDS",
	}
	for _, frag := range wantFragments {
		if !strings.Contains(doc, frag) {
			t.Errorf("document missing %q", frag)
		}
	}
}

func TestRenderWithoutReports(t *testing.T) {
	in := sampleInput()
	in.Reports = nil

	doc := Render(in)
	if !strings.Contains(doc, "No additional reports") {
		t.Error("document missing empty-reports placeholder")
	}
}

func TestRenderDeterministic(t *testing.T) {
	in := sampleInput()
	if Render(in) != Render(in) {
		t.Error("Render is not deterministic for identical input")
	}
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "basic extraction",
			text: "Porosidad excesiva en cordones de soldadura",
			want: []string{"porosidad", "excesiva", "cordones", "soldadura"},
		},
		{
			name: "stopwords and short words skipped",
			text: "para este caso la bomba falla cuando sube",
			want: []string{"caso", "bomba", "falla", "sube"},
		},
		{
			name: "duplicates keep first occurrence",
			text: "bomba bomba BOMBA presión presión",
			want: []string{"bomba", "presión"},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Keywords(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Keywords(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("keyword[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestKeywordsCap(t *testing.T) {
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima"
	got := Keywords(text)
	if len(got) != maxKeywords {
		t.Errorf("len(Keywords) = %d, want %d", len(got), maxKeywords)
	}
}

func TestTitleFromDescription(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{"short stays intact", "Bomba con fuga", "Bomba con fuga"},
		{
			"long gets truncated",
			"La bomba principal de la línea tres presenta una fuga intermitente",
			"La bomba principal de la línea tres presenta...",
		},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromDescription(tt.description); got != tt.want {
				t.Errorf("TitleFromDescription(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}
