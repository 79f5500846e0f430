package agentcli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"fieldforce_backend/internals/configs"
)

var ErrNotLoggedIn = errors.New("not logged in; run `fieldagent login` first")

// Credentials is what `login` leaves on disk for later commands.
type Credentials struct {
	BaseURL   string    `json:"base_url"`
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func defaultTokenFile() string {
	if p := configs.GetEnv("FIELDAGENT_TOKEN_FILE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldagent-token.json"
	}
	return filepath.Join(home, ".fieldagent", "token.json")
}

func SaveCredentials(path string, c *Credentials) error {
	raw, err := sonic.ConfigStd.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func LoadCredentials(path string) (*Credentials, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}
	var c Credentials
	if err := sonic.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "token file "+path)
	}
	if c.Token == "" || c.UserID == uuid.Nil {
		return nil, ErrNotLoggedIn
	}
	return &c, nil
}

func RemoveCredentials(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
