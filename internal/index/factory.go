package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

// Backend names accepted by New.
const (
	BackendLocal    = "local"
	BackendPostgres = "postgres"
)

// New opens the backend named by cfg.Backend. The local backend keeps
// its files in stores.Dir; postgres connects to cfg.PostgresDSN. dims
// is the embedding width the backend must accept.
func New(ctx context.Context, cfg config.IndexConfig, stores config.StoresConfig, dims int) (DocumentIndex, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendLocal:
		return NewLocalIndex(LocalConfig{
			Dir:         stores.Dir,
			Collection:  cfg.Collection,
			Dimensions:  dims,
			Oversample:  cfg.Oversample,
			CacheSizeMB: stores.CacheSizeMB,
		})
	case BackendPostgres:
		return NewPostgresIndex(ctx, PostgresConfig{
			DSN:        cfg.PostgresDSN,
			Collection: cfg.Collection,
			Dimensions: dims,
		})
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown index backend %q", cfg.Backend), nil).
			WithSuggestion(`Set index.backend to "local" or "postgres"`)
	}
}
