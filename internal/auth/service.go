package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/song-requests/internal"
)

// JWTTokenGenerator mints and validates HS256 admin bearer tokens. There is no
// login flow; operators get tokens from the token command.
type JWTTokenGenerator struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
	now      func() time.Time
}

func NewJWTTokenGenerator(secret, issuer string, ttl time.Duration) *JWTTokenGenerator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &JWTTokenGenerator{
		Secret:   []byte(secret),
		Issuer:   issuer,
		TokenTTL: ttl,
		now:      time.Now,
	}
}

// WithClock is used by tests.
func (j *JWTTokenGenerator) WithClock(now func() time.Time) *JWTTokenGenerator {
	j.now = now
	return j
}

// GenerateAccessToken creates a signed token for an operator.
func (j *JWTTokenGenerator) GenerateAccessToken(user internal.AdminUser) (IssuedToken, error) {
	if strings.TrimSpace(user.ID) == "" {
		return IssuedToken{}, internal.NewValidationFieldError("user_id", "user id is required", internal.ErrCodeValidationFailed)
	}
	if len(user.Permissions) == 0 {
		user.Permissions = []string{PermissionManageRequests}
	}

	issuedAt := j.now()
	expiresAt := issuedAt.Add(j.TokenTTL)
	claims := &Claims{
		UserID:         user.ID,
		Email:          user.Email,
		OrganizationID: user.OrganizationID,
		Permissions:    user.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign admin token: %w", err)
	}
	return IssuedToken{Token: tokenString, ExpiresAt: expiresAt}, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}
