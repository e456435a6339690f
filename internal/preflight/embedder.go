package preflight

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exowanderer/WikidataTextEmbedding/internal/embed"
)

// CheckEmbedder verifies the configured embedding provider answers. An
// unreachable provider is a warning: ingest retries failed pushes, and
// --offline swaps in static vectors.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	embedder, err := embed.New(ctx, c.cfg.Embedding)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot configure %s: %v", c.cfg.Embedding.Provider, err)
		return result
	}
	defer func() { _ = embedder.Close() }()

	info := embed.Info(ctx, embedder)
	if !info.Available {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s (%s) not reachable", info.Provider, info.Model)
		result.Details = "Ingest will retry failed pushes; use --offline for static vectors"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s, %d dimensions)", info.Provider, info.Model, info.Dimensions)
	return result
}

// CheckIndex verifies the index backend is reachable. The check dials
// postgres without touching the schema; the local backend only needs
// the data directory, which CheckDataDir already covers.
func (c *Checker) CheckIndex(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "index",
		Required: true,
	}

	if c.cfg.Index.Backend != "postgres" {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("local index under %s", c.cfg.Stores.Dir)
		return result
	}

	pool, err := pgxpool.New(ctx, c.cfg.Index.PostgresDSN)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("bad postgres DSN: %v", err)
		return result
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot reach postgres: %v", err)
		result.Details = "Check index.postgres_dsn and that the server accepts connections"
		return result
	}

	result.Status = StatusPass
	result.Message = "postgres reachable"
	return result
}
