package helper

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, app *fiber.App, target string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp.StatusCode, body
}

func TestResolvePaging(t *testing.T) {
	var got Paging
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		got = ResolvePaging(c, 20, 50)
		return c.SendStatus(fiber.StatusNoContent)
	})

	cases := []struct {
		query string
		want  Paging
	}{
		{"", Paging{Page: 1, PerPage: 20, Offset: 0, Limit: 20}},
		{"?page=3&per_page=10", Paging{Page: 3, PerPage: 10, Offset: 20, Limit: 10}},
		{"?page=2&limit=5", Paging{Page: 2, PerPage: 5, Offset: 5, Limit: 5}},
		{"?page=-4&per_page=999", Paging{Page: 1, PerPage: 50, Offset: 0, Limit: 50}},
		{"?page=abc&per_page=zero", Paging{Page: 1, PerPage: 20, Offset: 0, Limit: 20}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			_, err := app.Test(httptest.NewRequest("GET", "/"+tc.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildPaginationFromOffset(t *testing.T) {
	p := BuildPaginationFromOffset(45, 20, 20)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)

	empty := BuildPaginationFromOffset(0, 0, 0)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 20, empty.PerPage)
	assert.Equal(t, 1, empty.TotalPages)
	assert.False(t, empty.HasNext)
}

func TestJsonList_CountsRowsAndKeepsEmptyArray(t *testing.T) {
	app := fiber.New()
	app.Get("/paged", func(c *fiber.Ctx) error {
		return JsonList(c, "", []string{"a", "b"}, BuildPaginationFromOffset(7, 0, 2))
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		var rows []int
		return JsonList(c, "none", rows, nil)
	})

	status, body := get(t, app, "/paged")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ok", body["message"])
	page := body["pagination"].(map[string]any)
	assert.EqualValues(t, 2, page["count"])
	assert.EqualValues(t, 7, page["total"])
	assert.EqualValues(t, 4, page["total_pages"])

	_, body = get(t, app, "/plain")
	assert.Equal(t, []any{}, body["data"])
	assert.NotContains(t, body, "pagination")
}

func TestJsonError_Envelope(t *testing.T) {
	app := fiber.New()
	app.Get("/missing", func(c *fiber.Ctx) error { return JsonError(c, fiber.StatusNotFound, "") })
	app.Get("/zero", func(c *fiber.Ctx) error { return JsonError(c, 0, "boom") })
	app.Get("/invalid", func(c *fiber.Ctx) error {
		return JsonValidationError(c, map[string][]string{"latitude": {"out of range"}})
	})

	status, body := get(t, app, "/missing")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Not Found", body["message"])
	assert.Equal(t, "NOT_FOUND", body["error_code"])

	status, body = get(t, app, "/zero")
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", body["error_code"])

	status, body = get(t, app, "/invalid")
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_ERROR", body["error_code"])
	assert.Equal(t, []any{"out of range"}, body["errors"].(map[string]any)["latitude"])
}

func TestFiberErrorHandler_WrapsFiberErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler})
	app.Get("/forbidden", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusForbidden, "managers only") })
	app.Get("/crash", func(c *fiber.Ctx) error { return io.ErrUnexpectedEOF })

	status, body := get(t, app, "/forbidden")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "managers only", body["message"])
	assert.Equal(t, "FORBIDDEN", body["error_code"])

	status, body = get(t, app, "/crash")
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", body["message"])
}
