package services

import (
	apperrors "github.com/tracklane/tracklane-backend/pkg/errors"
	"gorm.io/gorm"
)

// runInTx executes fn in one transaction and carries the typed failure
// out. Every public mutating operation runs through here: reads, writes
// and event emission share one transaction.
func runInTx(db *gorm.DB, fn func(tx *gorm.DB) *apperrors.AppError) *apperrors.AppError {
	var appErr *apperrors.AppError
	err := db.Transaction(func(tx *gorm.DB) error {
		if e := fn(tx); e != nil {
			appErr = e
			return e
		}
		return nil
	})
	if appErr != nil {
		return appErr
	}
	if err != nil {
		return apperrors.Internal("Transaction failed")
	}
	return nil
}
