package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"gorm.io/gorm"
)

func createAPIKeysTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_api_keys",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.APIKeyModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.APIKeyModel{})
		},
	}
}
