package scheduler

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"fieldforce_backend/internals/configs"
	authRepo "fieldforce_backend/internals/features/users/auth/repository"
)

const defaultCleanupSpec = "@every 24h"

// StartTokenCleanupScheduler purges expired blacklist entries and dead refresh tokens
// on TOKEN_CLEANUP_CRON (default daily). The returned cron must be stopped on shutdown.
func StartTokenCleanupScheduler(db *gorm.DB) (*cron.Cron, error) {
	c := cron.New()
	spec := configs.GetEnv("TOKEN_CLEANUP_CRON", defaultCleanupSpec)
	if _, err := c.AddFunc(spec, func() { RunTokenCleanup(db) }); err != nil {
		return nil, err
	}
	c.Start()
	log.Printf("[CLEANUP] token cleanup scheduled (%s)", spec)
	return c, nil
}

func RunTokenCleanup(db *gorm.DB) {
	now := time.Now().UTC()

	if n, err := authRepo.CleanupExpiredBlacklist(db, now); err != nil {
		log.Printf("[CLEANUP ERROR] blacklist: %v", err)
	} else if n > 0 {
		log.Printf("[CLEANUP] %d expired blacklist entries removed", n)
	}

	if n, err := authRepo.CleanupExpiredRefreshTokens(db, now); err != nil {
		log.Printf("[CLEANUP ERROR] refresh tokens: %v", err)
	} else if n > 0 {
		log.Printf("[CLEANUP] %d dead refresh tokens removed", n)
	}
}
