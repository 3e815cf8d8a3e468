package health

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	CheckDatabase = "database"
	CheckRedis    = "redis"
	CheckMail     = "email"
)

type DBChecker struct {
	db *gorm.DB
}

func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{db: db}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: CheckDatabase, Healthy: true}
	sqlDB, err := c.db.DB()
	if err != nil {
		res.Healthy = false
		res.Error = err.Error()
		return res
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}

type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: CheckRedis, Healthy: true}
	if err := c.client.Ping(ctx).Err(); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}

// MailChecker only reports whether an SMTP transport is configured. It never
// dials, so a slow mail relay cannot fail the probe.
type MailChecker struct {
	configured bool
}

func NewMailChecker(configured bool) Checker {
	return &MailChecker{configured: configured}
}

func (c *MailChecker) Check(context.Context) CheckResult {
	res := CheckResult{Name: CheckMail, Healthy: c.configured}
	if !c.configured {
		res.Error = "smtp host not configured"
	}
	return res
}
