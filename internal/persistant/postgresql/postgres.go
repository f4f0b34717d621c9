package postgresql

import (
	"context"
	"fmt"

	"github.com/aniladanir/retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Initialize initializes the db session and auto migrates given models
func Initialize(ctx context.Context, connStr string, models []any) (*gorm.DB, error) {
	retrier, err := retry.New(retry.WithMaxAttemps(5))
	if err != nil {
		return nil, fmt.Errorf("encountered error when initializing retrier: %w", err)
	}

	// retry connect
	var (
		db      *gorm.DB
		openErr error
	)
	<-retrier.Retry(ctx, func(attempt int) (terminate bool) {
		db, openErr = gorm.Open(postgres.Open(connStr), &gorm.Config{})
		return openErr == nil
	}, true)
	if openErr != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", openErr)
	}

	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("failed to migrate models: %w", err)
	}

	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDb, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDb.Close()
}
