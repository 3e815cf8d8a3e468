package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationCodeState string

const (
	VerificationCodePending VerificationCodeState = "pending"
	VerificationCodeUsed    VerificationCodeState = "used"
	VerificationCodeExpired VerificationCodeState = "expired"
)

// VerificationCode is a one-time login code. Rows are never deleted by the
// login flow; expiry is implicit in ExpiresAt.
type VerificationCode struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"size:255;not null;index:idx_verification_codes_lookup,priority:1" json:"email"`
	Code      string    `gorm:"size:6;not null;index:idx_verification_codes_lookup,priority:2" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expiresAt"`
	Used      bool      `gorm:"not null;default:false" json:"used"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

func (c *VerificationCode) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// State derives PENDING, USED or EXPIRED. USED wins over EXPIRED.
func (c *VerificationCode) State(now time.Time) VerificationCodeState {
	switch {
	case c.Used:
		return VerificationCodeUsed
	case !c.ExpiresAt.After(now):
		return VerificationCodeExpired
	default:
		return VerificationCodePending
	}
}
