// Package document renders resolved incidences into the structured text
// artifact stored in the knowledge base.
//
// Rendering is a pure function of its inputs: no storage, no clock beyond
// the resolution time passed in, no external calls. Keyword extraction is a
// best-effort enrichment; when it yields nothing the section is omitted and
// the document still builds.
package document

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/kardexlab/kardex/internal/lifecycle"
)

const (
	rule    = "=========================================================="
	section = "----------------------------------------------------------"
)

// Input carries everything the builder needs to render one document.
type Input struct {
	Incidence         lifecycle.Incidence
	Reports           []lifecycle.Report
	Solution          string
	RootCause         string
	PreventiveActions string
	VersionStr        string
	ResolvedBy        string
	ResolvedAt        time.Time
}

// Render produces the knowledge document body with fixed section ordering:
// identification, problem description, reporter contributions, root-cause
// analysis, applied solution, preventive actions, extracted keywords.
func Render(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\nRESOLVED CASE: %s\n%s\n\n", rule, in.VersionStr, rule)

	b.WriteString("IDENTIFICATION\n" + section + "\n")
	fmt.Fprintf(&b, "Title: %s\n", in.Incidence.Title)
	fmt.Fprintf(&b, "Category: %s\n", orUnspecified(in.Incidence.Category))
	fmt.Fprintf(&b, "Reported: %s\n", in.Incidence.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Resolved: %s\n", in.ResolvedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Resolved by: %s\n\n", in.ResolvedBy)

	b.WriteString("PROBLEM DESCRIPTION\n" + section + "\n")
	b.WriteString(in.Incidence.Description + "\n\n")

	b.WriteString("REPORTER CONTRIBUTIONS\n" + section + "\n")
	if reports := formatReports(in.Reports); reports != "" {
		b.WriteString(reports + "\n\n")
	} else {
		b.WriteString("No additional reports\n\n")
	}

	b.WriteString("ROOT CAUSE ANALYSIS\n" + section + "\n")
	b.WriteString(in.RootCause + "\n\n")

	b.WriteString("APPLIED SOLUTION\n" + section + "\n")
	b.WriteString(in.Solution + "\n\n")

	b.WriteString("PREVENTIVE ACTIONS\n" + section + "\n")
	b.WriteString(in.PreventiveActions + "\n\n")

	keywords := Keywords(in.Incidence.Description + " " + in.Solution + " " + in.RootCause)
	if len(keywords) > 0 {
		b.WriteString("KEYWORDS\n" + section + "\n")
		b.WriteString(strings.Join(keywords, ", ") + "\n\n")
	}

	b.WriteString(rule + "\n")
	return b.String()
}

// formatReports renders reports as one line each, in order.
func formatReports(reports []lifecycle.Report) string {
	if len(reports) == 0 {
		return ""
	}
	lines := make([]string, 0, len(reports))
	for _, r := range reports {
		author := r.Author
		if author == "" {
			author = "anonymous"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s",
			author, r.CreatedAt.Format(time.RFC3339), r.Content))
	}
	return strings.Join(lines, "\n")
}

// maxKeywords caps the extracted keyword list.
const maxKeywords = 10

// stopwords are ignored during extraction. Spanish terms cover the shop
// floor vocabulary the system was built around; the English set covers
// mixed-language reports.
var stopwords = map[string]struct{}{
	// Spanish
	"para": {}, "como": {}, "pero": {}, "este": {}, "esta": {},
	"estos": {}, "estas": {}, "tiene": {}, "hacer": {}, "sobre": {},
	"cuando": {}, "donde": {}, "porque": {}, "desde": {}, "hasta": {},
	"entre": {}, "durante": {}, "tambien": {}, "también": {},
	// English
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {},
	"been": {}, "were": {}, "when": {}, "where": {}, "because": {},
	"there": {}, "their": {}, "which": {}, "while": {}, "about": {},
	"after": {}, "before": {}, "during": {},
}

// Keywords extracts up to maxKeywords distinct lowercase words of four or
// more letters, in first-occurrence order, skipping stopwords. Never fails:
// text without extractable words yields nil.
func Keywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	var keywords []string
	for _, w := range words {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// Title derives a short title from the first words of a description.
const titleWords = 8

// TitleFromDescription takes the first titleWords words of description,
// appending an ellipsis when text was cut.
func TitleFromDescription(description string) string {
	words := strings.Fields(description)
	if len(words) <= titleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWords], " ") + "..."
}

func orUnspecified(s string) string {
	if s == "" {
		return "unspecified"
	}
	return s
}
