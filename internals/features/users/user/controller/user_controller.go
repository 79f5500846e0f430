package controller

import (
	"errors"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"fieldforce_backend/internals/features/users/user/dto"
	"fieldforce_backend/internals/features/users/user/model"
	helper "fieldforce_backend/internals/helpers"
)

type UserController struct {
	DB       *gorm.DB
	Validate *validator.Validate
}

func NewUserController(db *gorm.DB) *UserController {
	return &UserController{DB: db, Validate: validator.New()}
}

// GET /api/m/users?q=&role=&on_duty=&page=&per_page=
func (uc *UserController) GetUsers(c *fiber.Ctx) error {
	p := helper.ResolvePaging(c, 20, 200)

	q := uc.DB.Model(&model.UserModel{})
	if s := strings.ToLower(strings.TrimSpace(c.Query("q"))); s != "" {
		like := "%" + s + "%"
		q = q.Where("LOWER(user_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?", like, like, like)
	}
	if role := strings.TrimSpace(c.Query("role")); role != "" {
		q = q.Where("role = ?", role)
	}
	switch strings.ToLower(c.Query("on_duty")) {
	case "true", "1":
		q = q.Where("is_on_duty = ?", true)
	case "false", "0":
		q = q.Where("is_on_duty = ?", false)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		log.Println("[ERROR] count users:", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to retrieve users")
	}

	var users []model.UserModel
	if err := q.Order("user_name ASC").Offset(p.Offset).Limit(p.Limit).Find(&users).Error; err != nil {
		log.Println("[ERROR] Failed to fetch users:", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to retrieve users")
	}

	return helper.JsonList(c, "Users fetched successfully", dto.FromUserModels(users),
		helper.BuildPaginationFromOffset(total, p.Offset, p.Limit))
}

// GET /api/u/users/me
func (uc *UserController) GetMe(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	var user model.UserModel
	if err := uc.DB.First(&user, "id = ?", userID).Error; err != nil {
		return helper.JsonError(c, fiber.StatusNotFound, "User not found")
	}
	return helper.JsonOK(c, "User profile fetched successfully", dto.FromUserModel(user))
}

// PATCH /api/u/users/me
func (uc *UserController) UpdateMe(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := uc.Validate.Struct(&req); err != nil {
		return helper.JsonError(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	return uc.applyUpdates(c, userID, req.ToUpdates(), "Profile updated")
}

// PATCH /api/a/users/:id
func (uc *UserController) AdminUpdateUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid UUID format")
	}

	var req dto.AdminUpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := uc.Validate.Struct(&req); err != nil {
		return helper.JsonError(c, fiber.StatusUnprocessableEntity, err.Error())
	}
	if req.ManagerID != nil && *req.ManagerID == id {
		return helper.JsonError(c, fiber.StatusUnprocessableEntity, "A user cannot manage themselves")
	}

	if me, err := helper.GetUserIDFromToken(c); err == nil && me == id {
		if req.IsActive != nil && !*req.IsActive {
			return helper.JsonError(c, fiber.StatusUnprocessableEntity, "You cannot deactivate your own account")
		}
	}

	return uc.applyUpdates(c, id, req.ToUpdates(), "User updated successfully")
}

func (uc *UserController) applyUpdates(c *fiber.Ctx, id uuid.UUID, updates map[string]interface{}, message string) error {
	if len(updates) == 0 {
		return helper.JsonError(c, fiber.StatusBadRequest, "Nothing to update")
	}

	var user model.UserModel
	err := uc.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.UserModel{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&user, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return helper.JsonError(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		log.Println("[ERROR] Failed to update user:", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to update user")
	}

	log.Printf("[INFO] updated user %s: %v", id, keys(updates))
	return helper.JsonUpdated(c, message, dto.FromUserModel(user))
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
