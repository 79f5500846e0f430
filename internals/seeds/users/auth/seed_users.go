package user

import (
	"log"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	authHelper "fieldforce_backend/internals/features/users/auth/helper"
	"fieldforce_backend/internals/features/users/user/model"
)

type UserSeed struct {
	UserName string `json:"user_name"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	// Manager is the user_name of the supervising manager, seeded earlier in the file.
	Manager string `json:"manager"`
}

// SeedUsersFromJSON inserts the accounts listed in filePath and returns how many
// were created. Existing emails or user names are left untouched.
func SeedUsersFromJSON(db *gorm.DB, filePath string) (int, error) {
	log.Println("📥 reading user seed:", filePath)

	file, err := os.ReadFile(filePath)
	if err != nil {
		return 0, errors.Wrap(err, "read user seed")
	}
	var inputs []UserSeed
	if err := sonic.Unmarshal(file, &inputs); err != nil {
		return 0, errors.Wrap(err, "decode user seed")
	}

	created := 0
	for _, data := range inputs {
		var existing model.UserModel
		if err := db.Where("email = ? OR user_name = ?", strings.ToLower(data.Email), data.UserName).
			First(&existing).Error; err == nil {
			log.Printf("ℹ️ user '%s' already exists, skipped", data.UserName)
			continue
		}

		newUser := model.UserModel{
			ID:       uuid.New(),
			UserName: data.UserName,
			FullName: data.FullName,
			Email:    data.Email,
			Password: data.Password,
			Role:     data.Role,
			IsActive: true,
		}
		if err := newUser.Validate(); err != nil {
			return created, errors.Wrapf(err, "seed user %q", data.UserName)
		}
		if data.Manager != "" {
			var mgr model.UserModel
			if err := db.Where("user_name = ?", data.Manager).First(&mgr).Error; err != nil {
				return created, errors.Wrapf(err, "manager %q of %q", data.Manager, data.UserName)
			}
			newUser.ManagerID = &mgr.ID
		}

		hashedPassword, err := authHelper.HashPassword(data.Password)
		if err != nil {
			return created, errors.Wrapf(err, "hash password of %q", data.UserName)
		}
		newUser.Password = hashedPassword

		if err := db.Create(&newUser).Error; err != nil {
			return created, errors.Wrapf(err, "insert user %q", data.UserName)
		}
		log.Printf("✅ seeded user '%s' (%s)", newUser.UserName, newUser.Role)
		created++
	}
	return created, nil
}
