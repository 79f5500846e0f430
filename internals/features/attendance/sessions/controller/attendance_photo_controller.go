package controller

import (
	"io"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	helper "fieldforce_backend/internals/helpers"
	helperOSS "fieldforce_backend/internals/helpers/oss"
)

const maxPhotoSize = 8 * 1024 * 1024

type AttendancePhotoController struct {
	Store helperOSS.PhotoStore
}

func NewAttendancePhotoController(store helperOSS.PhotoStore) *AttendancePhotoController {
	return &AttendancePhotoController{Store: store}
}

// POST /api/u/attendance/photos (multipart "photo") → {url}
// The returned url goes into the check-in / check-out photo field.
func (ctl *AttendancePhotoController) Upload(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("photo")
	if err != nil {
		if fh, err = c.FormFile("file"); err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "Missing multipart field 'photo'")
		}
	}
	if fh.Size > maxPhotoSize {
		return helper.JsonError(c, fiber.StatusRequestEntityTooLarge, "Photo too large (max 8MB)")
	}

	src, err := fh.Open()
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Cannot read photo")
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxPhotoSize+1))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Cannot read photo")
	}

	url, err := ctl.Store.SavePhoto(c.UserContext(), userID, fh.Filename, data)
	if err != nil {
		if errors.Is(err, helperOSS.ErrUnsupportedImage) {
			return helper.JsonError(c, fiber.StatusUnsupportedMediaType, "Unsupported image format (use jpg/png/webp)")
		}
		log.Printf("[ERROR] photo upload user=%s: %v", userID, err)
		return helper.JsonError(c, fiber.StatusBadGateway, "Photo storage failed")
	}
	return helper.JsonCreated(c, "Photo uploaded", fiber.Map{"url": url})
}
