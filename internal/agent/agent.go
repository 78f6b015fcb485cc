// Package agent implements the incident knowledge lifecycle.
//
// The Agent is the facade over the four core components: it receives
// problem reports, decides between reusing documented knowledge and
// tracking a new case, and on resolution inherits the case into the
// versioned knowledge base.
//
// Decision policy for intake: search the knowledge base with the report
// description; if any hit scores strictly above the reuse threshold the
// report takes the reuse branch (ranked matches plus a best-effort model
// comparison), otherwise a new case is opened in documenting state with
// best-effort guiding questions.
//
// Degradation rules: failures of the similarity search or the model never
// fail intake — search failure degrades to "no prior case found", model
// failure drops the enrichment (summary, questions). Only NotFound,
// Conflict and Validation reach the caller as errors.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kardexlab/kardex/internal/casebook"
	"github.com/kardexlab/kardex/internal/document"
	"github.com/kardexlab/kardex/internal/ledger"
	"github.com/kardexlab/kardex/internal/lifecycle"
	"github.com/kardexlab/kardex/internal/llm"
)

// ErrValidation rejects malformed input before any side effect.
var ErrValidation = errors.New("validation failed")

// minDescriptionLen is the minimum rune count for a problem description.
const minDescriptionLen = 10

// searchLimit caps similar cases retrieved during intake.
const searchLimit = 5

// Intake outcomes.
const (
	OutcomeReuse   = "reuse"
	OutcomeNewCase = "new"
)

// Config carries the decision thresholds.
type Config struct {
	// MinRelevance discards search results below this score.
	MinRelevance float64

	// ReuseThreshold gates the reuse branch. Strictly greater-than: a
	// case scoring exactly the threshold does not trigger reuse.
	ReuseThreshold float64
}

// IntakeResult is the outcome of ReceiveProblem.
type IntakeResult struct {
	Outcome          string                 `json:"outcome"`
	CheckpointID     string                 `json:"checkpoint_id"`
	IncidenceID      string                 `json:"incidence_id"`
	SimilarCases     []casebook.SimilarCase `json:"similar_cases,omitempty"`
	Analysis         string                 `json:"analysis,omitempty"`
	GuidingQuestions []string               `json:"guiding_questions,omitempty"`
}

// ResolutionResult is the outcome of ResolveIncidence.
type ResolutionResult struct {
	IncidenceID    string `json:"incidence_id"`
	VersionStr     string `json:"version"`
	DocumentID     string `json:"document_id,omitempty"`
	Stored         bool   `json:"stored"`
	KnowledgeCount int    `json:"knowledge_count"`
}

// EightDReport is a model-rendered 8D document for a resolved incidence.
type EightDReport struct {
	IncidenceID string    `json:"incidence_id"`
	Document    string    `json:"document"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AskResult is the outcome of a knowledge query.
type AskResult struct {
	Answer       string                 `json:"answer"`
	SimilarCases []casebook.SimilarCase `json:"similar_cases,omitempty"`
	HasContext   bool                   `json:"has_context"`
}

// Stats aggregates system state for health and dashboard reporting.
type Stats struct {
	KnowledgeDocuments int                               `json:"knowledge_documents"`
	ByCategory         map[string]int                    `json:"by_category,omitempty"`
	Versions           ledger.Stats                      `json:"versions"`
	Incidences         map[lifecycle.IncidenceStatus]int `json:"incidences,omitempty"`
}

// Agent coordinates the knowledge lifecycle. Composition only: every
// decision that touches storage lives in the owning component.
type Agent struct {
	memory    *casebook.Store
	versions  *ledger.Ledger
	cycle     *lifecycle.Controller
	generator llm.Generator
	cfg       Config
	logger    *slog.Logger
}

// New creates an Agent.
func New(memory *casebook.Store, versions *ledger.Ledger, cycle *lifecycle.Controller,
	generator llm.Generator, cfg Config, logger *slog.Logger) (*Agent, error) {
	if memory == nil || versions == nil || cycle == nil {
		return nil, fmt.Errorf("memory, versions and cycle are required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinRelevance <= 0 {
		cfg.MinRelevance = 0.5
	}
	if cfg.ReuseThreshold <= 0 {
		cfg.ReuseThreshold = 0.7
	}
	return &Agent{
		memory:    memory,
		versions:  versions,
		cycle:     cycle,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// ReceiveProblem is the intake entry point: checkpoint the report, search
// for similar documented cases, and decide between reuse and a new case.
func (a *Agent) ReceiveProblem(ctx context.Context, description, category, reporter string) (IntakeResult, error) {
	if err := validateProblem(description, category, reporter); err != nil {
		return IntakeResult{}, err
	}

	cp, err := a.cycle.Open(ctx, description, category, reporter, "")
	if err != nil {
		return IntakeResult{}, fmt.Errorf("opening checkpoint: %w", err)
	}

	// Search failure must not fail intake: degrade to "no prior case
	// found" and log the dependency failure.
	cases, err := a.memory.Search(ctx, description,
		casebook.WithCategory(ledger.Normalize(category)),
		casebook.WithLimit(searchLimit),
		casebook.WithMinRelevance(a.cfg.MinRelevance))
	if err != nil {
		a.logger.Warn("similarity search unavailable, treating report as new case",
			"checkpoint_id", cp.ID, "error", err)
		cases = nil
	}

	if a.hasRelevantCase(cases) {
		return a.reuseBranch(ctx, cp, cases, description, category, reporter)
	}
	return a.newCaseBranch(ctx, cp, description, category, reporter)
}

// hasRelevantCase applies the reuse gate: strictly above the threshold.
func (a *Agent) hasRelevantCase(cases []casebook.SimilarCase) bool {
	for _, c := range cases {
		if c.Relevance > a.cfg.ReuseThreshold {
			return true
		}
	}
	return false
}

// reuseBranch returns the ranked matches plus a best-effort model
// comparison. The incidence is still created so the report is tracked even
// when existing knowledge likely applies.
func (a *Agent) reuseBranch(ctx context.Context, cp lifecycle.Checkpoint,
	cases []casebook.SimilarCase, description, category, reporter string) (IntakeResult, error) {

	inc, err := a.cycle.CreateIncidence(ctx,
		document.TitleFromDescription(description), description, category,
		reporter, cp.ID, lifecycle.IncidenceOpen)
	if err != nil {
		return IntakeResult{}, fmt.Errorf("tracking incidence: %w", err)
	}

	// Model failure drops the summary, never the matches.
	analysis := ""
	prompt := fmt.Sprintf(similarityPrompt, description, formatCasesForPrompt(cases, 3))
	if text, genErr := a.generator.Generate(ctx, systemPrompt, prompt); genErr != nil {
		a.logger.Warn("similarity analysis unavailable",
			"incidence_id", inc.ID, "error", genErr)
	} else {
		analysis = text
	}

	a.logger.Info("problem matched documented cases",
		"incidence_id", inc.ID, "matches", len(cases), "category", category)

	return IntakeResult{
		Outcome:      OutcomeReuse,
		CheckpointID: cp.ID,
		IncidenceID:  inc.ID,
		SimilarCases: cases,
		Analysis:     analysis,
	}, nil
}

// newCaseBranch opens a documenting incidence and asks the model for
// guiding questions, best-effort.
func (a *Agent) newCaseBranch(ctx context.Context, cp lifecycle.Checkpoint,
	description, category, reporter string) (IntakeResult, error) {

	inc, err := a.cycle.CreateIncidence(ctx,
		document.TitleFromDescription(description), description, category,
		reporter, cp.ID, lifecycle.IncidenceDocumenting)
	if err != nil {
		return IntakeResult{}, fmt.Errorf("creating incidence: %w", err)
	}

	var questions []string
	prompt := fmt.Sprintf(questionsPrompt, category, description)
	if text, genErr := a.generator.Generate(ctx, systemPrompt, prompt); genErr != nil {
		a.logger.Warn("guiding questions unavailable",
			"incidence_id", inc.ID, "error", genErr)
	} else {
		questions = parseNumberedList(text)
	}

	a.logger.Info("new case opened for documentation",
		"incidence_id", inc.ID, "category", category)

	return IntakeResult{
		Outcome:          OutcomeNewCase,
		CheckpointID:     cp.ID,
		IncidenceID:      inc.ID,
		GuidingQuestions: questions,
	}, nil
}

// ResolveIncidence closes the cycle: render the knowledge document,
// allocate the next version for the category, persist the document, and
// mark the incidence resolved.
//
// Ordering is deliberate: allocation happens before persistence. If
// persistence then fails the allocated version is burned — never reissued —
// and the result reports Stored=false; a numbering gap is tolerable,
// a duplicate version is not.
func (a *Agent) ResolveIncidence(ctx context.Context, incidenceID, solution, rootCause, preventiveActions, resolver string) (ResolutionResult, error) {
	if strings.TrimSpace(solution) == "" {
		return ResolutionResult{}, fmt.Errorf("%w: solution must not be empty", ErrValidation)
	}
	if strings.TrimSpace(resolver) == "" {
		return ResolutionResult{}, fmt.Errorf("%w: resolver must not be empty", ErrValidation)
	}

	inc, err := a.cycle.Incidence(ctx, incidenceID)
	if err != nil {
		return ResolutionResult{}, err
	}
	if inc.Status == lifecycle.IncidenceResolved {
		return ResolutionResult{}, fmt.Errorf("%w: incidence %q resolved as %s",
			lifecycle.ErrAlreadyResolved, incidenceID, inc.VersionStr)
	}

	reports, err := a.cycle.Reports(ctx, incidenceID)
	if err != nil {
		return ResolutionResult{}, err
	}

	resolvedAt := time.Now().UTC()

	rec, err := a.versions.Allocate(ctx, inc.Category, ledger.WithIncidence(incidenceID))
	if err != nil {
		return ResolutionResult{}, err
	}

	body := document.Render(document.Input{
		Incidence:         inc,
		Reports:           reports,
		Solution:          solution,
		RootCause:         rootCause,
		PreventiveActions: preventiveActions,
		VersionStr:        rec.VersionStr,
		ResolvedBy:        resolver,
		ResolvedAt:        resolvedAt,
	})

	// The document id is fixed per incidence, so a retry after a failed
	// persist overwrites rather than duplicates.
	stored := true
	docID, err := a.memory.Persist(ctx, "case_"+incidenceID, body, casebook.Metadata{
		Category:    rec.Category,
		Version:     rec.VersionStr,
		Title:       inc.Title,
		IncidenceID: incidenceID,
		ResolvedBy:  resolver,
		Timestamp:   resolvedAt,
	})
	if err != nil {
		// Version rec.VersionStr is burned. The incidence still resolves;
		// the document can be re-persisted out of band.
		a.logger.Error("knowledge document not persisted, version burned",
			"incidence_id", incidenceID, "version", rec.VersionStr, "error", err)
		stored = false
		docID = ""
	}

	if _, err := a.cycle.Resolve(ctx, incidenceID, solution, rec.VersionStr); err != nil {
		return ResolutionResult{}, err
	}

	if inc.CheckpointID != "" {
		if _, err := a.cycle.Close(ctx, inc.CheckpointID, "resolved",
			[]string{rec.VersionStr}, nil); err != nil {
			a.logger.Warn("checkpoint not closed",
				"checkpoint_id", inc.CheckpointID, "error", err)
		}
	}

	count, err := a.memory.Count(ctx)
	if err != nil {
		a.logger.Warn("knowledge count unavailable", "error", err)
		count = 0
	}

	a.logger.Info("knowledge inherited",
		"incidence_id", incidenceID, "version", rec.VersionStr, "stored", stored)

	return ResolutionResult{
		IncidenceID:    incidenceID,
		VersionStr:     rec.VersionStr,
		DocumentID:     docID,
		Stored:         stored,
		KnowledgeCount: count,
	}, nil
}

// Search is the read-only knowledge query: ranked similar cases without
// model enrichment.
func (a *Agent) Search(ctx context.Context, query, category string, limit int) ([]casebook.SimilarCase, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrValidation)
	}
	opts := []casebook.SearchOption{
		casebook.WithMinRelevance(a.cfg.MinRelevance),
	}
	if limit > 0 {
		opts = append(opts, casebook.WithLimit(limit))
	}
	if category != "" {
		opts = append(opts, casebook.WithCategory(ledger.Normalize(category)))
	}
	return a.memory.Search(ctx, query, opts...)
}

// Ask answers a free-form question against the knowledge base. With
// retrieved context the model cites the cases; without, it answers
// generally and says so. Model failure degrades to the raw matches with an
// empty answer.
func (a *Agent) Ask(ctx context.Context, question, category string) (AskResult, error) {
	if strings.TrimSpace(question) == "" {
		return AskResult{}, fmt.Errorf("%w: question must not be empty", ErrValidation)
	}

	opts := []casebook.SearchOption{
		casebook.WithLimit(searchLimit),
		casebook.WithMinRelevance(a.cfg.MinRelevance),
	}
	if category != "" {
		opts = append(opts, casebook.WithCategory(ledger.Normalize(category)))
	}

	cases, err := a.memory.Search(ctx, question, opts...)
	if err != nil {
		a.logger.Warn("similarity search unavailable for query", "error", err)
		cases = nil
	}

	var prompt string
	if len(cases) > 0 {
		prompt = fmt.Sprintf(askWithContextPrompt, formatCasesForPrompt(cases, 3), question)
	} else {
		prompt = fmt.Sprintf(askWithoutContextPrompt, question)
	}

	answer := ""
	if text, genErr := a.generator.Generate(ctx, systemPrompt, prompt); genErr != nil {
		a.logger.Warn("answer generation unavailable", "error", genErr)
	} else {
		answer = text
	}

	return AskResult{
		Answer:       answer,
		SimilarCases: cases,
		HasContext:   len(cases) > 0,
	}, nil
}

// Generate8D renders a resolved incidence as a formal 8D report. Unlike
// the enrichment calls, the document is the deliverable here, so a model
// failure is an error rather than a degraded result.
func (a *Agent) Generate8D(ctx context.Context, incidenceID string) (EightDReport, error) {
	inc, err := a.cycle.Incidence(ctx, incidenceID)
	if err != nil {
		return EightDReport{}, err
	}
	if inc.Status != lifecycle.IncidenceResolved {
		return EightDReport{}, fmt.Errorf("%w: incidence %q must be resolved before an 8D report",
			ErrValidation, incidenceID)
	}

	reports, err := a.cycle.Reports(ctx, incidenceID)
	if err != nil {
		return EightDReport{}, err
	}

	prompt := fmt.Sprintf(eightDPrompt,
		inc.Title, inc.Category, inc.CreatedAt.Format("2006-01-02"),
		inc.VersionStr, inc.Description, formatReportsForPrompt(reports),
		inc.Solution)
	text, err := a.generator.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return EightDReport{}, fmt.Errorf("generating 8D report: %w", err)
	}

	a.logger.Info("8D report generated",
		"incidence_id", incidenceID, "version", inc.VersionStr)

	return EightDReport{
		IncidenceID: incidenceID,
		Document:    text,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// AddReport appends a free-text contribution to a tracked incidence.
func (a *Agent) AddReport(ctx context.Context, incidenceID, author, content string) (lifecycle.Report, error) {
	if strings.TrimSpace(content) == "" {
		return lifecycle.Report{}, fmt.Errorf("%w: report content must not be empty", ErrValidation)
	}
	return a.cycle.AddReport(ctx, incidenceID, author, content)
}

// Reports lists the contributions of an incidence in insertion order.
func (a *Agent) Reports(ctx context.Context, incidenceID string) ([]lifecycle.Report, error) {
	if _, err := a.cycle.Incidence(ctx, incidenceID); err != nil {
		return nil, err
	}
	return a.cycle.Reports(ctx, incidenceID)
}

// VersionHistory lists the version ledger for a category (all categories
// when empty).
func (a *Agent) VersionHistory(ctx context.Context, category string, limit int) ([]ledger.Record, error) {
	return a.versions.History(ctx, category, limit)
}

// Incidences lists tracked incidences with optional filters.
func (a *Agent) Incidences(ctx context.Context, status lifecycle.IncidenceStatus, category string, limit int) ([]lifecycle.Incidence, error) {
	return a.cycle.ListIncidences(ctx, status, category, limit)
}

// SystemStats aggregates knowledge, version and incidence counts.
func (a *Agent) SystemStats(ctx context.Context) (Stats, error) {
	total, err := a.memory.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	byCategory, err := a.memory.CountByCategory(ctx)
	if err != nil {
		return Stats{}, err
	}
	versions, err := a.versions.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	incidences, err := a.cycle.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		KnowledgeDocuments: total,
		ByCategory:         byCategory,
		Versions:           versions,
		Incidences:         incidences,
	}, nil
}

// validateProblem rejects malformed intake input before any side effect.
func validateProblem(description, category, reporter string) error {
	if len([]rune(strings.TrimSpace(description))) < minDescriptionLen {
		return fmt.Errorf("%w: description must be at least %d characters",
			ErrValidation, minDescriptionLen)
	}
	if strings.TrimSpace(category) == "" {
		return fmt.Errorf("%w: category must not be empty", ErrValidation)
	}
	if strings.TrimSpace(reporter) == "" {
		return fmt.Errorf("%w: reporter must not be empty", ErrValidation)
	}
	return nil
}
