package postgres

import (
	"fmt"

	"github.com/siteforge-labs/siteforge-backend/config"
)

// DSN returns the connection string for cfg. An explicit DB_DSN wins;
// otherwise the string is assembled from the individual parts.
func DSN(cfg *config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name,
	)
}
