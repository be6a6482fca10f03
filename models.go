package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus describes where an account sits in its lifecycle.
type UserStatus = string

const (
	// UserStatusPending is a registered account whose email is not verified yet.
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is a verified account that may authenticate.
	UserStatusActive UserStatus = "active"
)

// User is the account model. Active is false until the activation link is
// followed or a password reset implicitly verifies the address.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone,notnull" json:"phone,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	Active         bool       `bun:"is_active" json:"is_active"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LastLoginAt    *time.Time `bun:"last_login_at" json:"last_login_at,omitempty"`
	JoinedAt       *time.Time `bun:"joined_at,nullzero,default:current_timestamp" json:"joined_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Status derives the lifecycle state from the activation flag.
func (u *User) Status() UserStatus {
	if u != nil && u.Active {
		return UserStatusActive
	}
	return UserStatusPending
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NormalizeEmail lower-cases an email identifier the way login and lookups do.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
