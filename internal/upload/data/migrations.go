package data

import (
	"github.com/scenehub/scenehub-backend/internal/pkg/database"
)

// Migrate creates or updates the tables this module owns.
func Migrate(db *database.DB) error {
	return db.AutoMigrate(
		&ProjectPO{},
		&DesignOptionPO{},
		&RecordPO{},
		&FileArtifactPO{},
		&UploadSessionPO{},
	)
}
