// Package app wires the application together: configuration, logging,
// database pool, Genkit, and the knowledge lifecycle components behind a
// single container with one Close.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kardexlab/kardex/internal/agent"
	"github.com/kardexlab/kardex/internal/casebook"
	"github.com/kardexlab/kardex/internal/config"
	"github.com/kardexlab/kardex/internal/ledger"
	"github.com/kardexlab/kardex/internal/lifecycle"
	"github.com/kardexlab/kardex/internal/llm"
	"github.com/kardexlab/kardex/internal/log"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Memory    *casebook.Store
	Versions  *ledger.Ledger
	Cycle     *lifecycle.Controller
	Generator llm.Generator
	Agent     *agent.Agent
}

// Close releases all resources. Safe to call on a partially initialized
// App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	return nil
}
