package database

import (
	"context"
	"time"

	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/observability"

	"gorm.io/gorm"
)

// Models lists every table the service owns, in migration order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.VerificationCode{},
		&domain.Session{},
	}
}

func Migrate(db *gorm.DB) error {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(context.Background(), "migrate", time.Since(start))
	}()
	if err := db.AutoMigrate(Models()...); err != nil {
		observability.RecordDatabaseStartupEvent(context.Background(), "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(context.Background(), "migrate", "success")
	return nil
}

// PendingTables reports which owned tables do not exist yet.
func PendingTables(db *gorm.DB) []string {
	var pending []string
	for _, m := range Models() {
		if !db.Migrator().HasTable(m) {
			stmt := &gorm.Statement{DB: db}
			if err := stmt.Parse(m); err == nil {
				pending = append(pending, stmt.Schema.Table)
			}
		}
	}
	return pending
}
