package db

import (
	"fmt"

	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates every table owned by the service.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.DeviceUsage{},
		&models.Order{},
		&models.UsedCode{},
		&models.RedemptionLog{},
		&models.Setting{},
		&models.Invocation{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
