package helper

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Paging is the window a list handler reads from ?page= and ?per_page=.
type Paging struct {
	Page    int
	PerPage int
	Offset  int
	Limit   int
}

// ResolvePaging reads ?page= and ?per_page= (?limit= is accepted as an alias).
// Out of range values fall back to page 1 and defaultPerPage; maxPerPage 0
// means unbounded.
func ResolvePaging(c *fiber.Ctx, defaultPerPage, maxPerPage int) Paging {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}

	raw := c.Query("per_page")
	if strings.TrimSpace(raw) == "" {
		raw = c.Query("limit")
	}
	perPage, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || perPage <= 0 {
		perPage = defaultPerPage
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}

	return Paging{Page: page, PerPage: perPage, Offset: (page - 1) * perPage, Limit: perPage}
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return def
	}
	return n
}

// Pagination is the block attached to list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
	Count      int   `json:"count"`
}

// BuildPaginationFromOffset derives the page block from the offset/limit a
// repository query ran with. An empty result still reports one page.
func BuildPaginationFromOffset(total int64, offset, limit int) *Pagination {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	page := offset/limit + 1
	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages < 1 {
		pages = 1
	}
	return &Pagination{
		Page:       page,
		PerPage:    limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
		HasPrev:    page > 1,
	}
}

// Envelope is the success body every handler returns.
type Envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ErrorResponse is the failure body. Errors is only set for 422.
type ErrorResponse struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	ErrorCode string              `json:"error_code,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
}

var errorCodes = map[int]string{
	fiber.StatusBadRequest:            "BAD_REQUEST",
	fiber.StatusUnauthorized:          "UNAUTHORIZED",
	fiber.StatusForbidden:             "FORBIDDEN",
	fiber.StatusNotFound:              "NOT_FOUND",
	fiber.StatusConflict:              "CONFLICT",
	fiber.StatusRequestEntityTooLarge: "PAYLOAD_TOO_LARGE",
	fiber.StatusUnprocessableEntity:   "VALIDATION_ERROR",
	fiber.StatusTooManyRequests:       "RATE_LIMITED",
	fiber.StatusGatewayTimeout:        "TIMEOUT",
}

func errorCode(status int) string {
	if code, ok := errorCodes[status]; ok {
		return code
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "ERROR"
}

// JsonError writes a failure envelope. Status 0 is treated as 500.
func JsonError(c *fiber.Ctx, status int, message string) error {
	if status == 0 {
		status = fiber.StatusInternalServerError
	}
	if strings.TrimSpace(message) == "" {
		message = statusText(status)
	}
	return c.Status(status).JSON(ErrorResponse{
		Message:   message,
		ErrorCode: errorCode(status),
	})
}

func statusText(status int) string {
	if msg := fiber.NewError(status).Message; msg != "" {
		return msg
	}
	return "error"
}

// JsonValidationError writes 422 with messages keyed by request field.
func JsonValidationError(c *fiber.Ctx, fieldErrors map[string][]string) error {
	if fieldErrors == nil {
		fieldErrors = map[string][]string{}
	}
	return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
		Message:   "validation failed",
		ErrorCode: errorCode(fiber.StatusUnprocessableEntity),
		Errors:    fieldErrors,
	})
}

func success(c *fiber.Ctx, status int, message, fallback string, data any, page *Pagination) error {
	if strings.TrimSpace(message) == "" {
		message = fallback
	}
	return c.Status(status).JSON(Envelope{Success: true, Message: message, Data: data, Pagination: page})
}

// JsonList writes a list. page may be nil for unpaged lists; its Count is
// filled from rows.
func JsonList[T any](c *fiber.Ctx, message string, rows []T, page *Pagination) error {
	if rows == nil {
		rows = []T{}
	}
	if page != nil {
		page.Count = len(rows)
	}
	return success(c, fiber.StatusOK, message, "ok", rows, page)
}

func JsonOK(c *fiber.Ctx, message string, data any) error {
	return success(c, fiber.StatusOK, message, "ok", data, nil)
}

func JsonCreated(c *fiber.Ctx, message string, data any) error {
	return success(c, fiber.StatusCreated, message, "created", data, nil)
}

func JsonUpdated(c *fiber.Ctx, message string, data any) error {
	return success(c, fiber.StatusOK, message, "updated", data, nil)
}

func JsonDeleted(c *fiber.Ctx, message string, data any) error {
	return success(c, fiber.StatusOK, message, "deleted", data, nil)
}
