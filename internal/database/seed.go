package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/observability"
	"github.com/nextest/portal-auth/internal/security"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserSeed struct {
	Email      string
	Name       string
	Department string
	Password   string
	Active     bool
}

type ProvisionReport struct {
	User    *domain.User
	Created bool
}

// ProvisionUser creates the user or refreshes its profile when the email is
// already present. The email must carry allowedDomain.
func ProvisionUser(db *gorm.DB, allowedDomain string, seed UserSeed) (*ProvisionReport, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(context.Background(), "seed", time.Since(start))
	}()

	email := strings.ToLower(strings.TrimSpace(seed.Email))
	name := strings.TrimSpace(seed.Name)
	if email == "" || !strings.HasSuffix(email, strings.ToLower(allowedDomain)) || len(email) == len(allowedDomain) {
		return nil, fmt.Errorf("email must end with %s", allowedDomain)
	}
	if name == "" {
		return nil, errors.New("name is required")
	}

	var hash *string
	if seed.Password != "" {
		h, err := security.HashPassword(seed.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = &h
	}

	report := &ProvisionReport{}
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing domain.User
		err := tx.Where("email = ?", email).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			u := &domain.User{
				Email:        email,
				Name:         name,
				Department:   strings.TrimSpace(seed.Department),
				PasswordHash: hash,
				Active:       seed.Active,
			}
			if err := tx.Create(u).Error; err != nil {
				return err
			}
			report.User = u
			report.Created = true
			return nil
		case err != nil:
			return err
		}

		updates := map[string]any{
			"name":       name,
			"department": strings.TrimSpace(seed.Department),
			"active":     seed.Active,
			"updated_at": time.Now().UTC(),
		}
		if hash != nil {
			updates["password_hash"] = *hash
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.First(&existing, "id = ?", existing.ID).Error; err != nil {
			return err
		}
		report.User = &existing
		return nil
	})
	if err != nil {
		observability.RecordDatabaseStartupEvent(context.Background(), "seed", "error")
		return nil, err
	}
	observability.RecordDatabaseStartupEvent(context.Background(), "seed", "success")
	return report, nil
}

func SetUserActive(db *gorm.DB, email string, active bool) error {
	email = strings.ToLower(strings.TrimSpace(email))
	res := db.Model(&domain.User{}).Where("email = ?", email).
		Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func ListUsers(db *gorm.DB) ([]domain.User, error) {
	var users []domain.User
	err := db.Order("email ASC").Find(&users).Error
	return users, err
}
