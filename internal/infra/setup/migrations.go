package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"snaplive/internal/domain"
)

// MigrateDB creates or updates the events and photos tables.
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := db.AutoMigrate(&domain.Event{}, &domain.Photo{}); err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	// The photo cascade lives in GormEventRepository.DeleteWithPhotos, not in a
	// foreign key.
	if !db.Migrator().HasIndex(&domain.Photo{}, "idx_photos_event_created") {
		if err := db.Migrator().CreateIndex(&domain.Photo{}, "idx_photos_event_created"); err != nil {
			logrus.Warnf("Could not create idx_photos_event_created: %v", err)
		}
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
