package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/models"
)

type Repositories struct {
	TokenRepository interfaces.TokenRepository
}

func InitRepositories(eventstreamDB *gorm.DB) *Repositories {
	return &Repositories{
		TokenRepository: NewTokenRepository(eventstreamDB),
	}
}

func MigrateEventstreamDB(eventstreamDB *gorm.DB) error {
	return eventstreamDB.AutoMigrate(
		&models.TrackedToken{},
	)
}
