package agent

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kardexlab/kardex/internal/casebook"
	"github.com/kardexlab/kardex/internal/lifecycle"
)

// systemPrompt frames every generation call. The model only ever sees
// knowledge the engine retrieved; it must not invent resolutions.
const systemPrompt = `You are an assistant for an industrial incident knowledge base.
You help technicians compare new problems against documented resolved cases
and guide the documentation of new ones. Base every statement on the case
material provided in the prompt; when the material does not cover something,
say so instead of guessing. Be concise and concrete.`

// similarityPrompt asks for a comparison between a new problem and
// retrieved historical cases.
const similarityPrompt = `A new problem has been reported:

%s

These documented cases from the knowledge base are semantically similar:

%s

Compare the new problem with the cases above. State which case (by version)
matches best, whether its solution likely applies, and what differences the
technician should verify before reusing it. Maximum 5 sentences.`

// questionsPrompt asks for guiding questions when no prior case applies.
const questionsPrompt = `A problem with no similar documented case has been reported:

Category: %s
Description: %s

Write 5 numbered questions that will help the reporter document this case
completely: symptoms, conditions, frequency, affected equipment or process,
and anything already attempted. One question per line, numbered 1-5.`

// askWithContextPrompt answers a knowledge query using retrieved cases.
const askWithContextPrompt = `Answer the following question using the documented cases below.
Cite the case versions you draw from.

DOCUMENTED CASES:
%s

QUESTION: %s`

// askWithoutContextPrompt answers when the knowledge base has nothing.
const askWithoutContextPrompt = `The knowledge base has no documented case related to this question:

QUESTION: %s

Give general guidance, and state explicitly that no documented case covers
this yet so the answer is not backed by recorded experience.`

// eightDPrompt renders a resolved case as a formal 8D report.
const eightDPrompt = `Write a professional 8D report from this resolved case.

CASE:
Title: %s
Category: %s
Opened: %s
Knowledge version: %s

Problem description:
%s

Reports from the people involved:
%s

Applied solution:
%s

Produce all eight disciplines with these exact headings:
D1 - Team, D2 - Problem Description, D3 - Containment Actions,
D4 - Root Cause Analysis, D5 - Permanent Corrective Actions,
D6 - Implementation and Validation, D7 - Prevention,
D8 - Team Recognition.
Base every discipline on the case material above; write "To be determined"
for anything the material does not cover.`

// formatCasesForPrompt renders retrieved cases as prompt context. Content
// is truncated per case to keep the prompt bounded.
func formatCasesForPrompt(cases []casebook.SimilarCase, maxCases int) string {
	if maxCases > 0 && len(cases) > maxCases {
		cases = cases[:maxCases]
	}

	var b strings.Builder
	for i, c := range cases {
		fmt.Fprintf(&b, "--- Case %d (relevance %.0f%%) ---\n", i+1, c.Relevance*100)
		if c.Metadata.Version != "" {
			fmt.Fprintf(&b, "Version: %s\n", c.Metadata.Version)
		}
		if c.Metadata.Category != "" {
			fmt.Fprintf(&b, "Category: %s\n", c.Metadata.Category)
		}
		const maxContent = 1500
		b.WriteString(truncate(c.Content, maxContent) + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate cuts s to at most max bytes plus an ellipsis, backing up to a
// rune boundary so multi-byte text is never split mid-rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// formatReportsForPrompt renders an incidence's report thread as prompt
// context.
func formatReportsForPrompt(reports []lifecycle.Report) string {
	if len(reports) == 0 {
		return "(no reports recorded)"
	}
	var b strings.Builder
	for _, rep := range reports {
		author := rep.Author
		if author == "" {
			author = "anonymous"
		}
		fmt.Fprintf(&b, "- %s: %s\n", author, rep.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// numberedLine matches list items like "1. text", "2) text", "3- text".
var numberedLine = regexp.MustCompile(`^\s*\d+[.)\-]\s*(.+)$`)

// parseNumberedList extracts the items of a numbered list from model
// output. Text without numbered lines comes back as a single item so a
// model that ignored the format still yields something usable.
func parseNumberedList(text string) []string {
	var items []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			items = append(items, strings.TrimSpace(m[1]))
		}
	}
	if len(items) == 0 && strings.TrimSpace(text) != "" {
		return []string{strings.TrimSpace(text)}
	}
	return items
}
