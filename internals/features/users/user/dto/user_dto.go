package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"

	uModel "fieldforce_backend/internals/features/users/user/model"
)

/* =======================================================
   REQUEST DTOs
   ======================================================= */

// UpdateProfileRequest: what a user may change about themselves.
type UpdateProfileRequest struct {
	FullName  *string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	AvatarURL *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

func (r *UpdateProfileRequest) ToUpdates() map[string]interface{} {
	m := map[string]interface{}{}
	if r.FullName != nil {
		m["full_name"] = strings.TrimSpace(*r.FullName)
	}
	if r.AvatarURL != nil {
		m["avatar_url"] = strings.TrimSpace(*r.AvatarURL)
	}
	return m
}

// AdminUpdateUserRequest: role, account activation and reporting line.
type AdminUpdateUserRequest struct {
	Role      *string    `json:"role,omitempty" validate:"omitempty,oneof=admin manager employee"`
	IsActive  *bool      `json:"is_active,omitempty"`
	ManagerID *uuid.UUID `json:"manager_id,omitempty"`
}

func (r *AdminUpdateUserRequest) ToUpdates() map[string]interface{} {
	m := map[string]interface{}{}
	if r.Role != nil {
		m["role"] = *r.Role
	}
	if r.IsActive != nil {
		m["is_active"] = *r.IsActive
	}
	if r.ManagerID != nil {
		if *r.ManagerID == uuid.Nil {
			m["manager_id"] = nil
		} else {
			m["manager_id"] = *r.ManagerID
		}
	}
	return m
}

/* =======================================================
   RESPONSE DTOs
   ======================================================= */

type UserResponse struct {
	ID        uuid.UUID  `json:"id"`
	UserName  string     `json:"user_name"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	ManagerID *uuid.UUID `json:"manager_id,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	IsActive  bool       `json:"is_active"`
	IsOnDuty  bool       `json:"is_on_duty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func FromUserModel(u uModel.UserModel) UserResponse {
	return UserResponse{
		ID:        u.ID,
		UserName:  u.UserName,
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      u.Role,
		ManagerID: u.ManagerID,
		AvatarURL: u.AvatarURL,
		IsActive:  u.IsActive,
		IsOnDuty:  u.IsOnDuty,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func FromUserModels(list []uModel.UserModel) []UserResponse {
	out := make([]UserResponse, 0, len(list))
	for _, u := range list {
		out = append(out, FromUserModel(u))
	}
	return out
}
