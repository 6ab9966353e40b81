package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// User represents a human principal that can log in with a password.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                string     `bun:"id,pk,type:uuid"`
	Email             string     `bun:"email,notnull,unique"`
	Name              string     `bun:"name"`
	PasswordHash      *string    `bun:"password_hash"`       // bcrypt hash
	RememberTokenHash *string    `bun:"remember_token_hash"` // SHA256 hash of the current remember-me token
	CreatedAt         time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt       *time.Time `bun:"last_login_at"`
	DisabledAt        *time.Time `bun:"disabled_at"`
}

// APIToken is the persisted record behind a bearer API token. Only the SHA256 hash of the
// plaintext token is stored.
type APIToken struct {
	bun.BaseModel `bun:"table:api_tokens,alias:at"`

	ID          string        `bun:"id,pk,type:uuid"`
	UserID      string        `bun:"user_id,notnull,type:uuid"` // FK to users(id)
	Name        string        `bun:"name"`
	Type        string        `bun:"type,notnull"`
	TokenHash   string        `bun:"token_hash,notnull,unique"`
	Group       string        `bun:"token_group,notnull"`
	Environment string        `bun:"environment,notnull"`
	Metadata    TokenMetadata `bun:"metadata,type:jsonb"`
	CreatedAt   time.Time     `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt  *time.Time    `bun:"last_used_at"`
}

// TokenMetadata holds caller supplied attributes persisted with a token.
type TokenMetadata map[string]string

// Scan implements sql.Scanner for reading from database
func (m *TokenMetadata) Scan(value any) error {
	if value == nil {
		*m = make(TokenMetadata)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan TokenMetadata: expected []byte, got %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements driver.Valuer for writing to database
func (m TokenMetadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Session tracks browser sessions. The session cookie carries the plaintext token; only
// its hash is stored.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID         string    `bun:"id,pk,type:uuid"`
	UserID     string    `bun:"user_id,notnull,type:uuid"` // FK to users(id)
	TokenHash  string    `bun:"token_hash,notnull,unique"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt time.Time `bun:"last_used_at,notnull,default:current_timestamp"`
	UserAgent  *string   `bun:"user_agent"`
	IPAddress  *string   `bun:"ip_address"`
	Revoked    bool      `bun:"revoked,notnull,default:false"`
}
