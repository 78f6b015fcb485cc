package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kardexlab/kardex/internal/agent"
	"github.com/kardexlab/kardex/internal/casebook"
	"github.com/kardexlab/kardex/internal/ledger"
	"github.com/kardexlab/kardex/internal/lifecycle"
)

// handlers holds the route implementations. All state lives in the agent;
// handlers only translate HTTP to operations and errors to statuses.
type handlers struct {
	agent  *agent.Agent
	logger *slog.Logger
}

type problemRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Reporter    string `json:"reporter"`
}

// receiveProblem handles POST /api/problems: the intake operation.
func (h *handlers) receiveProblem(w http.ResponseWriter, r *http.Request) {
	var req problemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", agent.ErrValidation, err))
		return
	}

	result, err := h.agent.ReceiveProblem(r.Context(), req.Description, req.Category, req.Reporter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, result)
}

// listIncidences handles GET /api/incidences with optional status,
// category and limit query parameters.
func (h *handlers) listIncidences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := lifecycle.IncidenceStatus(q.Get("status"))
	limit := intParam(q.Get("limit"))

	incidences, err := h.agent.Incidences(r.Context(), status, q.Get("category"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"incidences": incidences,
		"count":      len(incidences),
	})
}

// listReports handles GET /api/incidences/{id}/reports.
func (h *handlers) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.agent.Reports(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

type reportRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// addReport handles POST /api/incidences/{id}/reports.
func (h *handlers) addReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", agent.ErrValidation, err))
		return
	}

	report, err := h.agent.AddReport(r.Context(), r.PathValue("id"), req.Author, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, report)
}

type resolveRequest struct {
	Solution          string `json:"solution"`
	RootCause         string `json:"root_cause"`
	PreventiveActions string `json:"preventive_actions"`
	Resolver          string `json:"resolver"`
}

// resolveIncidence handles POST /api/incidences/{id}/resolve: the
// knowledge inheritance operation.
func (h *handlers) resolveIncidence(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", agent.ErrValidation, err))
		return
	}

	result, err := h.agent.ResolveIncidence(r.Context(), r.PathValue("id"),
		req.Solution, req.RootCause, req.PreventiveActions, req.Resolver)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

// generate8D handles POST /api/incidences/{id}/8d: render a resolved
// incidence as an 8D report.
func (h *handlers) generate8D(w http.ResponseWriter, r *http.Request) {
	result, err := h.agent.Generate8D(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

// search handles GET /api/search?q=...&category=...&limit=....
func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cases, err := h.agent.Search(r.Context(), q.Get("q"), q.Get("category"), intParam(q.Get("limit")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if cases == nil {
		cases = []casebook.SimilarCase{}
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

type askRequest struct {
	Question string `json:"question"`
	Category string `json:"category"`
}

// ask handles POST /api/ask: a knowledge query answered by the model over
// retrieved cases.
func (h *handlers) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", agent.ErrValidation, err))
		return
	}

	result, err := h.agent.Ask(r.Context(), req.Question, req.Category)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

// versionHistory handles GET /api/versions?category=...&limit=....
func (h *handlers) versionHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	records, err := h.agent.VersionHistory(r.Context(), q.Get("category"), intParam(q.Get("limit")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"versions": records,
		"count":    len(records),
	})
}

// stats handles GET /api/stats.
func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.agent.SystemStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}

// intParam parses a positive integer query parameter; anything else means
// "use the default".
func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
