package database

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fieldforce_backend/internals/configs"
	sessionModel "fieldforce_backend/internals/features/attendance/sessions/model"
	authModel "fieldforce_backend/internals/features/users/auth/model"
	userModel "fieldforce_backend/internals/features/users/user/model"
)

var DB *gorm.DB

// ConnectDB opens the database named by DB_DRIVER (postgres by default, or sqlite
// for a local single-file setup) and stores it in DB.
func ConnectDB() {
	db, err := Open(configs.GetEnv("DB_DRIVER", "postgres"))
	if err != nil {
		log.Fatalf("❌ Failed to connect DB: %v", err)
	}
	DB = db
	log.Println("✅ DB connected.")
}

func Open(driver string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: configs.NewGormLogger()}

	switch strings.ToLower(driver) {
	case "sqlite":
		path := configs.GetEnv("DB_SQLITE_PATH", "fieldforce.db")
		log.Printf("🔌 Opening SQLite at %s...", path)
		return OpenSQLite(path, cfg)
	case "postgres", "":
		log.Println("🔌 Connecting to PostgreSQL...")
		// with PgBouncer point host/port at the pooler and keep PreferSimpleProtocol on
		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=fieldforce&options=-c statement_timeout=%s",
			configs.GetEnv("DB_USER"),
			configs.GetEnv("DB_PASSWORD"),
			configs.GetEnv("DB_HOST", "localhost"),
			configs.GetEnv("DB_PORT", "5432"),
			configs.GetEnv("DB_NAME", "fieldforce"),
			configs.GetEnv("DB_SSLMODE", "require"),
			configs.GetEnv("DB_STATEMENT_TIMEOUT_MS", "5000"),
		)
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), cfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// OpenSQLite also serves ":memory:" for tests; a shared in-memory database needs a
// single connection.
func OpenSQLite(path string, cfg *gorm.Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = &gorm.Config{Logger: configs.NewGormLogger()}
	}
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func TunePool() {
	if DB == nil || DB.Dialector.Name() != "postgres" {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("[WARN] pool tune err: %v", err)
		return
	}
	sqlDB.SetMaxOpenConns(configs.GetEnvInt("DB_MAX_OPEN_CONNS", 20))
	sqlDB.SetMaxIdleConns(configs.GetEnvInt("DB_MAX_IDLE_CONNS", 10))
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

func WarmUpQueries() {
	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := ping(); err != nil {
			log.Printf("[WARN] warm-up ping err: %v", err)
			return
		}
		DB.Exec("SELECT 1 FROM attendance_sessions LIMIT 1")
	}()
}

func ping() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Migrate creates the schema, including the one-open-session-per-user partial index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&userModel.UserModel{},
		&authModel.RefreshTokenModel{},
		&authModel.TokenBlacklistModel{},
		&sessionModel.AttendanceSessionModel{},
		&sessionModel.LocationSampleModel{},
		&sessionModel.DailyWorkSummaryModel{},
	); err != nil {
		return err
	}
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_sessions_open_per_user
		ON attendance_sessions (attendance_session_user_id)
		WHERE attendance_session_check_out_at IS NULL AND attendance_session_deleted_at IS NULL
	`).Error
}
