// Package testdb opens a migrated in-memory SQLite database for tests.
package testdb

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"fieldforce_backend/internals/constants"
	database "fieldforce_backend/internals/databases"
	userModel "fieldforce_backend/internals/features/users/user/model"
)

func New(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts an active account. password is stored as given.
func CreateUser(t testing.TB, db *gorm.DB, name, role, password string) *userModel.UserModel {
	t.Helper()
	if role == "" {
		role = constants.RoleEmployee
	}
	u := &userModel.UserModel{
		ID:       uuid.New(),
		UserName: name,
		FullName: name,
		Email:    fmt.Sprintf("%s@example.com", name),
		Password: password,
		Role:     role,
		IsActive: true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}
