package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type claim values
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the validated view of a token's payload.
type Claims struct {
	UserID    string
	Email     string
	FullName  string
	Role      string
	Scope     string
	ClientID  string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair is an issued access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// Issuer signs and validates JWT token pairs. Access and refresh tokens
// use distinct HMAC secrets; validation is stateless.
type Issuer struct {
	cfg *config.Config
}

func NewIssuer(cfg *config.Config) *Issuer {
	return &Issuer{cfg: cfg}
}

// IssuePair creates a fresh access/refresh pair for a user. TTLs of zero
// fall back to the server defaults; clientID may be empty for first-party
// sessions.
func (i *Issuer) IssuePair(
	user *models.User,
	clientID, scope string,
	accessTTL, refreshTTL time.Duration,
) (*Pair, error) {
	if accessTTL <= 0 {
		accessTTL = i.cfg.AccessTokenExpiration
	}
	if refreshTTL <= 0 {
		refreshTTL = i.cfg.RefreshTokenExpiration
	}

	access, err := i.sign(user, clientID, scope, TypeAccess, i.cfg.AccessTokenSecret, accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := i.sign(user, clientID, scope, TypeRefresh, i.cfg.RefreshTokenSecret, refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
		Scope:        scope,
	}, nil
}

func (i *Issuer) sign(
	user *models.User,
	clientID, scope, typ, secret string,
	ttl time.Duration,
) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"email":    user.Email,
		"fullName": user.FullName,
		"role":     user.Role,
		"scope":    scope,
		"type":     typ,
		"iss":      i.cfg.BaseURL,
		"jti":      uuid.New().String(),
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	if clientID != "" {
		claims["client_id"] = clientID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateAccessToken parses and verifies an access token.
func (i *Issuer) ValidateAccessToken(raw string) (*Claims, error) {
	return i.validate(raw, i.cfg.AccessTokenSecret, TypeAccess)
}

// ValidateRefreshToken parses and verifies a refresh token.
func (i *Issuer) ValidateRefreshToken(raw string) (*Claims, error) {
	return i.validate(raw, i.cfg.RefreshTokenSecret, TypeRefresh)
}

func (i *Issuer) validate(raw, secret, wantType string) (*Claims, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	if typ, _ := mapClaims["type"].(string); typ != wantType {
		return nil, ErrTokenType
	}

	claims := &Claims{
		UserID:   stringClaim(mapClaims, "sub"),
		Email:    stringClaim(mapClaims, "email"),
		FullName: stringClaim(mapClaims, "fullName"),
		Role:     stringClaim(mapClaims, "role"),
		Scope:    stringClaim(mapClaims, "scope"),
		ClientID: stringClaim(mapClaims, "client_id"),
		TokenID:  stringClaim(mapClaims, "jti"),
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return claims, nil
}

// Rotate exchanges a validated refresh token for a new pair. The new pair
// carries fresh token IDs; the old refresh token is simply abandoned.
// clientID must match the client the refresh token was issued to.
func (i *Issuer) Rotate(
	user *models.User,
	claims *Claims,
	clientID string,
	accessTTL, refreshTTL time.Duration,
) (*Pair, error) {
	if claims.ClientID != clientID {
		return nil, ErrClientMismatch
	}
	return i.IssuePair(user, clientID, claims.Scope, accessTTL, refreshTTL)
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
