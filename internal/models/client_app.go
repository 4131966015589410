package models

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultScopes are granted when a client registers without an explicit
// scope list and when an authorization request omits the scope parameter.
var DefaultScopes = StringArray{"profile", "email"}

// Default token lifetimes in seconds, applied when a client does not
// override them.
const (
	DefaultAccessTokenLifetime  = 3600
	DefaultRefreshTokenLifetime = 2592000 // 30 days
)

// StringArray is a custom type for storing string slices as JSON in the
// database.
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value any) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan StringArray: unsupported type %T", value)
	}

	if len(bytes) == 0 {
		*s = StringArray{}
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Contains reports whether the array holds the given value.
func (s StringArray) Contains(value string) bool {
	for _, v := range s {
		if v == value {
			return true
		}
	}
	return false
}

// ClientApp is an application registered to use this server for single
// sign-on.
type ClientApp struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"     json:"id"`
	ClientID     string `gorm:"uniqueIndex;type:varchar(64)"    json:"clientId"`
	ClientSecret string `gorm:"not null"                        json:"-"` // bcrypt hash
	Name         string `gorm:"not null"                        json:"name"`
	Description  string `                                       json:"description"`

	RedirectURIs   StringArray `gorm:"type:json" json:"redirectUris"`
	AllowedScopes  StringArray `gorm:"type:json" json:"allowedScopes"`
	AllowedOrigins StringArray `gorm:"type:json" json:"allowedOrigins"`

	// Trusted clients skip the consent step for authenticated users.
	Trusted  bool `gorm:"default:false" json:"trusted"`
	IsActive bool `gorm:"default:true"  json:"isActive"`

	// Per-client token lifetimes in seconds. Zero means server default.
	AccessTokenLifetime  int `json:"accessTokenLifetime"`
	RefreshTokenLifetime int `json:"refreshTokenLifetime"`

	CreatedBy string    `gorm:"type:varchar(36)" json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ClientApp) TableName() string {
	return "client_apps"
}

// GenerateClientID returns a new public client identifier.
func GenerateClientID() string {
	return "client_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// GenerateClientSecret creates a new client secret. It returns the plain
// secret, shown to the caller exactly once, and its bcrypt hash for storage.
func GenerateClientSecret() (plain, hash string, err error) {
	raw, err := util.CryptoRandomBytes(32)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	plain = hex.EncodeToString(raw)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return plain, string(hashed), nil
}

// ValidateClientSecret compares a plain secret against the stored hash.
func (c *ClientApp) ValidateClientSecret(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(c.ClientSecret), []byte(plain)) == nil
}

// AccessTokenTTL returns the client's access token lifetime, falling back
// to fallback when unset.
func (c *ClientApp) AccessTokenTTL(fallback time.Duration) time.Duration {
	if c.AccessTokenLifetime > 0 {
		return time.Duration(c.AccessTokenLifetime) * time.Second
	}
	return fallback
}

// RefreshTokenTTL returns the client's refresh token lifetime, falling back
// to fallback when unset.
func (c *ClientApp) RefreshTokenTTL(fallback time.Duration) time.Duration {
	if c.RefreshTokenLifetime > 0 {
		return time.Duration(c.RefreshTokenLifetime) * time.Second
	}
	return fallback
}
