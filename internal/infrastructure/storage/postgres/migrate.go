package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"docflow/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the idempotent schema. Intended for development and
// single-instance deployments.
func Migrate(ctx context.Context, pool *Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info(ctx, "database schema applied")
	return nil
}
