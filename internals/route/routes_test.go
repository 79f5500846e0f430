package routes_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fieldforce_backend/internals/constants"
	"fieldforce_backend/internals/databases/testdb"
	authHelper "fieldforce_backend/internals/features/users/auth/helper"
	"fieldforce_backend/internals/route/testapp"
)

const password = "rahasia123"

type reply struct {
	Status  int
	Cookies []*http.Cookie
	Body    map[string]interface{}
	Raw     []byte
}

func (r reply) data() map[string]interface{} {
	d, _ := r.Body["data"].(map[string]interface{})
	return d
}

func (r reply) list() []interface{} {
	l, _ := r.Body["data"].([]interface{})
	return l
}

func call(t *testing.T, app *testapp.App, method, path, token string, body interface{}, cookies ...*http.Cookie) reply {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return send(t, app, req)
}

func send(t *testing.T, app *testapp.App, req *http.Request) reply {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := reply{Status: resp.StatusCode, Cookies: resp.Cookies(), Raw: raw}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		require.NoError(t, sonic.Unmarshal(raw, &out.Body), string(raw))
	}
	return out
}

type account struct {
	ID    uuid.UUID
	Token string
}

func signIn(t *testing.T, app *testapp.App, name, role string) account {
	t.Helper()
	hash, err := authHelper.HashPassword(password)
	require.NoError(t, err)
	u := testdb.CreateUser(t, app.DB, name, role, hash)

	r := call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": name, "password": password})
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	token, _ := r.data()["access_token"].(string)
	require.NotEmpty(t, token)
	return account{ID: u.ID, Token: token}
}

/* ====================== auth ====================== */

func TestAuth_RegisterBootstrapsAdminThenEmployees(t *testing.T) {
	app := testapp.New(t)

	r := call(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"user_name": "boss", "email": "boss@example.com", "password": password,
	})
	require.Equal(t, http.StatusCreated, r.Status, string(r.Raw))
	assert.Equal(t, constants.RoleAdmin, r.data()["role"])
	assert.Empty(t, r.data()["password"])

	r = call(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"user_name": "budi", "email": "budi@example.com", "password": password,
	})
	require.Equal(t, http.StatusCreated, r.Status)
	assert.Equal(t, constants.RoleEmployee, r.data()["role"])

	r = call(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"user_name": "budi", "email": "other@example.com", "password": password,
	})
	assert.Equal(t, http.StatusConflict, r.Status)
}

func TestAuth_LoginMeLogout(t *testing.T) {
	app := testapp.New(t)
	budi := signIn(t, app, "budi", "")

	r := call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": "budi", "password": "wrong-pass1"})
	assert.Equal(t, http.StatusUnauthorized, r.Status)

	r = call(t, app, http.MethodGet, "/api/auth/me", budi.Token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, budi.ID.String(), r.data()["id"])

	r = call(t, app, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, r.Status)
	assert.Equal(t, false, r.Body["success"])

	r = call(t, app, http.MethodPost, "/api/auth/logout", budi.Token, nil)
	require.Equal(t, http.StatusOK, r.Status)

	r = call(t, app, http.MethodGet, "/api/u/attendance/sessions/open", budi.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, r.Status)
}

func TestAuth_RefreshTokenRotates(t *testing.T) {
	app := testapp.New(t)
	hash, err := authHelper.HashPassword(password)
	require.NoError(t, err)
	testdb.CreateUser(t, app.DB, "budi", "", hash)

	login := call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": "budi", "password": password})
	require.Equal(t, http.StatusOK, login.Status)
	var refresh *http.Cookie
	for _, c := range login.Cookies {
		if c.Name == "refresh_token" {
			refresh = c
		}
	}
	require.NotNil(t, refresh)

	r := call(t, app, http.MethodPost, "/api/auth/refresh-token", "", nil, &http.Cookie{Name: "refresh_token", Value: refresh.Value})
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	assert.NotEmpty(t, r.data()["access_token"])

	r = call(t, app, http.MethodPost, "/api/auth/refresh-token", "", map[string]string{"refresh_token": refresh.Value})
	assert.Equal(t, http.StatusUnauthorized, r.Status, "a rotated refresh token cannot be reused")
}

/* ====================== attendance ====================== */

func TestAttendance_CheckInSampleCheckOut(t *testing.T) {
	app := testapp.New(t)
	budi := signIn(t, app, "budi", "")

	r := call(t, app, http.MethodGet, "/api/u/attendance/sessions/open", budi.Token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Nil(t, r.Body["data"])

	r = call(t, app, http.MethodPost, "/api/u/attendance/sessions", budi.Token, map[string]interface{}{
		"attendance_session_check_in_odometer": -1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, r.Status)

	r = call(t, app, http.MethodPost, "/api/u/attendance/sessions", budi.Token, map[string]interface{}{
		"attendance_session_check_in_odometer": 1000,
	})
	require.Equal(t, http.StatusCreated, r.Status, string(r.Raw))
	id, _ := r.data()["attendance_session_id"].(string)
	require.NotEmpty(t, id)

	r = call(t, app, http.MethodPost, "/api/u/attendance/sessions", budi.Token, map[string]interface{}{
		"attendance_session_check_in_odometer": 1000,
	})
	assert.Equal(t, http.StatusConflict, r.Status)

	r = call(t, app, http.MethodPut, "/api/u/attendance/me/active", budi.Token, map[string]bool{"active": true})
	require.Equal(t, http.StatusOK, r.Status)

	at := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	sample := map[string]interface{}{
		"location_sample_latitude":    -6.2,
		"location_sample_longitude":   106.8,
		"location_sample_captured_at": at,
	}
	r = call(t, app, http.MethodPost, "/api/u/attendance/sessions/"+id+"/samples", budi.Token, sample)
	require.Equal(t, http.StatusCreated, r.Status, string(r.Raw))
	r = call(t, app, http.MethodPost, "/api/u/attendance/sessions/"+id+"/samples", budi.Token, sample)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, true, r.data()["location_sample_duplicate"])

	r = call(t, app, http.MethodPost, "/api/u/attendance/sessions/"+id+"/samples", budi.Token, map[string]interface{}{
		"location_sample_latitude": 95, "location_sample_longitude": 0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, r.Status)

	r = call(t, app, http.MethodGet, "/api/u/attendance/sessions/"+id+"/samples", budi.Token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Len(t, r.list(), 1)

	r = call(t, app, http.MethodPatch, "/api/u/attendance/sessions/"+id, budi.Token, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, r.Status)

	closing := map[string]interface{}{
		"attendance_session_check_out_at":       time.Now().UTC().Format(time.RFC3339),
		"attendance_session_check_out_odometer": 1042,
		"attendance_session_duration_minutes":   60,
		"attendance_session_distance":           42,
	}
	r = call(t, app, http.MethodPatch, "/api/u/attendance/sessions/"+id, budi.Token, closing)
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	assert.Equal(t, false, r.data()["attendance_session_is_open"])

	r = call(t, app, http.MethodPatch, "/api/u/attendance/sessions/"+id, budi.Token, closing)
	assert.Equal(t, http.StatusConflict, r.Status)

	r = call(t, app, http.MethodGet, "/api/u/attendance/sessions", budi.Token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Len(t, r.list(), 1)

	r = call(t, app, http.MethodDelete, "/api/u/attendance/sessions/"+id, budi.Token, nil)
	assert.Equal(t, http.StatusConflict, r.Status, "closed sessions are not rolled back")
}

func TestAttendance_SummaryUpsertIsIdempotent(t *testing.T) {
	app := testapp.New(t)
	budi := signIn(t, app, "budi", "")

	body := map[string]interface{}{
		"daily_work_summary_total_minutes":  480,
		"daily_work_summary_total_distance": 55.5,
		"daily_work_summary_check_in_count": 2,
	}
	for i := 0; i < 2; i++ {
		r := call(t, app, http.MethodPut, "/api/u/attendance/summaries/2025-03-10", budi.Token, body)
		require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
		assert.Equal(t, "2025-03-10", r.data()["daily_work_summary_date"])
	}

	r := call(t, app, http.MethodGet, "/api/u/attendance/summaries?from=2025-03-01&to=2025-03-31", budi.Token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Len(t, r.list(), 1)

	r = call(t, app, http.MethodPut, "/api/u/attendance/summaries/10-03-2025", budi.Token, body)
	assert.Equal(t, http.StatusBadRequest, r.Status)
}

func TestAttendance_OwnershipAndPortals(t *testing.T) {
	app := testapp.New(t)
	budi := signIn(t, app, "budi", "")
	sari := signIn(t, app, "sari", "")
	mgr := signIn(t, app, "mgr", constants.RoleManager)

	r := call(t, app, http.MethodPost, "/api/u/attendance/sessions", budi.Token, map[string]interface{}{
		"attendance_session_check_in_odometer": 1,
	})
	require.Equal(t, http.StatusCreated, r.Status)
	id := r.data()["attendance_session_id"].(string)

	r = call(t, app, http.MethodGet, "/api/u/attendance/sessions/"+id, sari.Token, nil)
	assert.Equal(t, http.StatusNotFound, r.Status)
	r = call(t, app, http.MethodDelete, "/api/u/attendance/sessions/"+id, sari.Token, nil)
	assert.Equal(t, http.StatusNotFound, r.Status)

	r = call(t, app, http.MethodGet, "/api/m/attendance/sessions", budi.Token, nil)
	assert.Equal(t, http.StatusForbidden, r.Status)

	r = call(t, app, http.MethodGet, "/api/m/attendance/sessions?open=true&user_id="+budi.ID.String(), mgr.Token, nil)
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	assert.Len(t, r.list(), 1)

	r = call(t, app, http.MethodGet, "/api/m/attendance/sessions/"+id, mgr.Token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.EqualValues(t, 0, r.data()["sample_count"])

	r = call(t, app, http.MethodGet, "/api/m/users", mgr.Token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Len(t, r.list(), 3)

	r = call(t, app, http.MethodDelete, "/api/a/attendance/sessions/"+id, mgr.Token, nil)
	assert.Equal(t, http.StatusForbidden, r.Status)

	// the owner can roll back their own open session
	r = call(t, app, http.MethodDelete, "/api/u/attendance/sessions/"+id, budi.Token, nil)
	assert.Equal(t, http.StatusOK, r.Status)
}

func TestUsers_AdminRoleChangeAppliesImmediately(t *testing.T) {
	app := testapp.New(t)
	admin := signIn(t, app, "admin", constants.RoleAdmin)
	budi := signIn(t, app, "budi", "")

	r := call(t, app, http.MethodGet, "/api/m/users", budi.Token, nil)
	require.Equal(t, http.StatusForbidden, r.Status)

	r = call(t, app, http.MethodPatch, "/api/a/users/"+budi.ID.String(), admin.Token, map[string]string{"role": constants.RoleManager})
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))

	r = call(t, app, http.MethodGet, "/api/m/users", budi.Token, nil)
	assert.Equal(t, http.StatusOK, r.Status)

	r = call(t, app, http.MethodPatch, "/api/a/users/"+admin.ID.String(), admin.Token, map[string]bool{"is_active": false})
	assert.Equal(t, http.StatusUnprocessableEntity, r.Status)

	r = call(t, app, http.MethodPatch, "/api/a/users/"+budi.ID.String(), admin.Token, map[string]bool{"is_active": false})
	require.Equal(t, http.StatusOK, r.Status)
	r = call(t, app, http.MethodGet, "/api/u/users/me", budi.Token, nil)
	assert.Equal(t, http.StatusForbidden, r.Status)
}

/* ====================== photos & reports ====================== */

func TestPhotos_UploadReturnsServedURL(t *testing.T) {
	app := testapp.New(t)
	budi := signIn(t, app, "budi", "")

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.Set(x, x%48, color.RGBA{R: 200, A: 255})
	}
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("photo", "odometer.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/u/attendance/photos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+budi.Token)
	r := send(t, app, req)
	require.Equal(t, http.StatusCreated, r.Status, string(r.Raw))
	url, _ := r.data()["url"].(string)
	assert.True(t, strings.HasPrefix(url, "/uploads/"+budi.ID.String()+"/odometer_"), url)
	assert.True(t, strings.HasSuffix(url, ".webp"))
}

func TestReports_DailySummaryWorkbook(t *testing.T) {
	app := testapp.New(t)
	budi := signIn(t, app, "budi", "")
	mgr := signIn(t, app, "mgr", constants.RoleManager)

	today := time.Now().UTC().Format("2006-01-02")
	r := call(t, app, http.MethodPost, "/api/u/attendance/sessions", budi.Token, map[string]interface{}{
		"attendance_session_check_in_odometer": 10,
	})
	require.Equal(t, http.StatusCreated, r.Status)
	r = call(t, app, http.MethodPut, "/api/u/attendance/summaries/"+today, budi.Token, map[string]interface{}{
		"daily_work_summary_total_minutes":  90,
		"daily_work_summary_total_distance": 12.5,
		"daily_work_summary_check_in_count": 1,
	})
	require.Equal(t, http.StatusOK, r.Status)

	r = call(t, app, http.MethodGet, "/api/m/attendance/reports/daily-summaries.xlsx?from="+today, budi.Token, nil)
	assert.Equal(t, http.StatusForbidden, r.Status)

	r = call(t, app, http.MethodGet, "/api/m/attendance/reports/daily-summaries.xlsx?from="+today+"&to="+today, mgr.Token, nil)
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))

	f, err := excelize.OpenReader(bytes.NewReader(r.Raw))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Daily Summary")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, today, rows[1][0])
	assert.Equal(t, "budi", rows[1][1])
	assert.Equal(t, "90", rows[1][4])

	sessions, err := f.GetRows("Sessions")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	r = call(t, app, http.MethodGet, "/api/m/attendance/reports/daily-summaries.xlsx", mgr.Token, nil)
	assert.Equal(t, http.StatusBadRequest, r.Status)
}

func TestHealth(t *testing.T) {
	app := testapp.New(t)
	r := call(t, app, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, "OK", r.Body["status"])
}
