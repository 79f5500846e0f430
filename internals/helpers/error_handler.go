package helper

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// FiberErrorHandler keeps *fiber.Error responses (role checks, 404s, body limits)
// in the same JSON envelope as the handlers.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code, msg = fe.Code, fe.Message
	} else {
		log.Printf("[ERROR] %s %s: %v", c.Method(), c.OriginalURL(), err)
	}
	return JsonError(c, code, msg)
}
