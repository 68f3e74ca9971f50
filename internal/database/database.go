package database

import (
	"time"

	"github.com/tracklane/tracklane-backend/internal/config"
	applogger "github.com/tracklane/tracklane-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Connect() *gorm.DB {
	dsn := config.AppConfig.DatabaseURL
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		applogger.Fatal().Err(err).Msg("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		applogger.Fatal().Err(err).Msg("Failed to get underlying sql.DB")
	}

	// Connection pool settings
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	DB = db
	applogger.Info().Int("max_open", 25).Int("max_idle", 10).Msg("Connected to PostgreSQL")
	return db
}

// LockForUpdate adds a FOR UPDATE row lock on dialects that support it.
// Group-member rows are locked before any admin-existence check so that
// two concurrent "last admin leaves" requests serialize instead of both
// passing the check. SQLite (used by the test suite) has no FOR UPDATE
// and serializes writers on its own.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
