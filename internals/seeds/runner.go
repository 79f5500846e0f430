package seeds

import (
	"log"

	"gorm.io/gorm"

	users "fieldforce_backend/internals/seeds/users/auth"
)

// RunAllSeeds loads the development fixtures. Each seeder skips rows that already exist.
func RunAllSeeds(db *gorm.DB, usersFile string) error {
	//* User
	n, err := users.SeedUsersFromJSON(db, usersFile)
	if err != nil {
		return err
	}
	log.Printf("🌱 seeded %d user(s) from %s", n, usersFile)
	return nil
}
