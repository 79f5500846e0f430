package model

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"fieldforce_backend/internals/constants"
)

// validator instance shared by the model
var validate = validator.New()

// UserModel maps the users table.
// IsActive gates the account; IsOnDuty is the field "active" flag toggled by check-in/out.
type UserModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserName  string     `gorm:"size:50;not null;uniqueIndex" json:"user_name" validate:"required,min=3,max=50"`
	FullName  string     `gorm:"size:120" json:"full_name" validate:"max=120"`
	Email     string     `gorm:"size:255;uniqueIndex;not null" json:"email" validate:"required,email"`
	Password  string     `gorm:"not null" json:"password,omitempty" validate:"required,min=8"`
	Role      string     `gorm:"type:varchar(20);not null;default:'employee'" json:"role" validate:"oneof=admin manager employee"`
	ManagerID *uuid.UUID `gorm:"type:uuid;index" json:"manager_id,omitempty"`
	AvatarURL *string    `gorm:"type:text" json:"avatar_url,omitempty"`
	IsActive  bool       `gorm:"not null;default:true" json:"is_active"`
	IsOnDuty  bool       `gorm:"not null;default:false" json:"is_on_duty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName pins the table name.
func (UserModel) TableName() string {
	return "users"
}

func (u *UserModel) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// SetDefaultValues fills defaults before validation.
func (u *UserModel) SetDefaultValues() {
	if u.Role == "" {
		u.Role = constants.RoleEmployee
	}
	u.UserName = strings.TrimSpace(u.UserName)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

// Validate runs the struct tags and flattens the errors into one message.
func (u *UserModel) Validate() error {
	u.SetDefaultValues()

	if err := validate.Struct(u); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// Sanitized strips secrets before the model leaves the service.
func (u UserModel) Sanitized() UserModel {
	u.Password = ""
	return u
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	errorMessages := make(map[string]string)
	for _, fieldErr := range validationErrs {
		switch fieldErr.Tag() {
		case "required":
			errorMessages[fieldErr.Field()] = fieldErr.Field() + " is required."
		case "email":
			errorMessages[fieldErr.Field()] = "Invalid email format."
		case "min":
			errorMessages[fieldErr.Field()] = fieldErr.Field() + " must be at least " + fieldErr.Param() + " characters."
		case "max":
			errorMessages[fieldErr.Field()] = fieldErr.Field() + " must be at most " + fieldErr.Param() + " characters."
		case "oneof":
			errorMessages[fieldErr.Field()] = fieldErr.Field() + " must be one of " + fieldErr.Param() + "."
		default:
			errorMessages[fieldErr.Field()] = "Invalid format."
		}
	}
	return errors.New(formatErrorMessage(errorMessages))
}

func formatErrorMessage(errs map[string]string) string {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f + ": " + errs[f])
	}
	return b.String()
}
