package user_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldforce_backend/internals/databases/testdb"
	authHelper "fieldforce_backend/internals/features/users/auth/helper"
	"fieldforce_backend/internals/features/users/user/model"
	user "fieldforce_backend/internals/seeds/users/auth"
)

const seedJSON = `[
  {"user_name": "admin", "email": "admin@example.com", "password": "admin12345", "role": "admin"},
  {"user_name": "mgr", "email": "mgr@example.com", "password": "manager123", "role": "manager"},
  {"user_name": "budi", "full_name": "Budi", "email": "Budi@Example.com", "password": "rahasia123", "role": "employee", "manager": "mgr"}
]`

func TestSeedUsersFromJSON_IsIdempotent(t *testing.T) {
	db := testdb.New(t)
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o600))

	n, err := user.SeedUsersFromJSON(db, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = user.SeedUsersFromJSON(db, path)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var budi, mgr model.UserModel
	require.NoError(t, db.Where("user_name = ?", "budi").First(&budi).Error)
	require.NoError(t, db.Where("user_name = ?", "mgr").First(&mgr).Error)
	assert.Equal(t, "budi@example.com", budi.Email)
	require.NotNil(t, budi.ManagerID)
	assert.Equal(t, mgr.ID, *budi.ManagerID)
	assert.NoError(t, authHelper.CheckPasswordHash(budi.Password, "rahasia123"))
}

func TestSeedUsersFromJSON_RejectsBadRole(t *testing.T) {
	db := testdb.New(t)
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"user_name": "x1x", "email": "x@example.com", "password": "abcdefg12", "role": "owner"}]`), 0o600))

	_, err := user.SeedUsersFromJSON(db, path)
	assert.Error(t, err)
}
