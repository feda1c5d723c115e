package commands

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/solvaholic/rally/internal/api"
	"github.com/solvaholic/rally/internal/cache"
	"github.com/solvaholic/rally/internal/config"
	"github.com/solvaholic/rally/internal/db"
	"github.com/solvaholic/rally/internal/logger"
)

// backend bundles what commands that talk to the API need
type backend struct {
	ctx      context.Context
	settings *config.Settings
	client   *api.Client
	database *db.DB
	host     string
	log      logger.Logger
}

// newBackend loads settings, opens the database and builds an API client.
// Callers must call close.
func newBackend(cmd *cobra.Command) (*backend, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(settings.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	log := logger.Default()
	client, err := api.FromSettings(settings, log)
	if err != nil {
		return nil, err
	}

	database, err := openDB()
	if err != nil {
		return nil, err
	}

	return &backend{
		ctx:      logger.WithContext(cmd.Context(), log),
		settings: settings,
		client:   client,
		database: database,
		host:     u.Host,
		log:      log,
	}, nil
}

func (b *backend) close() {
	b.database.Close()
}

// guard reserves a rate limit slot for the endpoint, then runs call. Failed
// calls still count against the window.
func (b *backend) guard(endpoint string, call func() error) error {
	canProceed, err := b.database.ReserveRequest(b.host, endpoint)
	if err != nil {
		return err
	}
	if !canProceed {
		return fmt.Errorf("rate limit exceeded for %s, please wait before retrying", endpoint)
	}

	return call()
}

// saveRaw keeps the response body exactly as received, on disk and in the
// database. Failures are logged and do not abort the command.
func (b *backend) saveRaw(kind, key string, body []byte) {
	if err := cache.SaveRaw(kind, key, body); err != nil {
		b.log.Warn("failed to cache raw response", "kind", kind, "key", key, "err", err)
	}
	if err := b.database.SaveRawResponse(kind, key, body); err != nil {
		b.log.Warn("failed to store raw response", "kind", kind, "key", key, "err", err)
	}
}

// selfID returns the configured user, falling back to the cached session
func (b *backend) selfID() string {
	return resolveSelfID(b.settings)
}

func resolveSelfID(settings *config.Settings) string {
	if settings != nil && settings.UserID != "" {
		return settings.UserID
	}
	if session, err := cache.GetSession(); err == nil {
		return session.UserID
	}
	return ""
}
