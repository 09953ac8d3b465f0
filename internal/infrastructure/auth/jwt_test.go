package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiosk/backend/internal/infrastructure/config"
)

func newTestService(expiration time.Duration) *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:     "test-secret-that-is-long-enough",
		Expiration: expiration,
		Issuer:     "kiosk-backend",
	})
}

func TestJWTServiceRoundTrip(t *testing.T) {
	svc := newTestService(time.Hour)
	userID := uuid.New()

	token, expiresAt, err := svc.GenerateToken(GenerateTokenInput{
		UserID: userID,
		Name:   "Front Desk",
		Role:   RoleStaff,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, RoleStaff, claims.Role)
	assert.Equal(t, "kiosk-backend", claims.Issuer)

	parsed, err := claims.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestJWTServiceRejectsInvalidTokens(t *testing.T) {
	svc := newTestService(time.Hour)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{
			Secret:     "a-completely-different-secret",
			Expiration: time.Hour,
			Issuer:     "kiosk-backend",
		})
		token, _, err := other.GenerateToken(GenerateTokenInput{UserID: uuid.New(), Role: RoleAdmin})
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		short := newTestService(-time.Minute)
		token, _, err := short.GenerateToken(GenerateTokenInput{UserID: uuid.New(), Role: RoleStaff})
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("unsigned algorithm", func(t *testing.T) {
		claims := &Claims{UserID: uuid.New().String(), Role: RoleAdmin}
		token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateToken(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, _, err := svc.GenerateToken(GenerateTokenInput{UserID: uuid.New(), Role: Role("manager")})
		assert.ErrorIs(t, err, ErrUnknownRole)
	})
}

func TestClaimsHasAnyRole(t *testing.T) {
	claims := &Claims{Role: RoleTerminal}

	assert.True(t, claims.HasAnyRole(RoleStaff, RoleTerminal))
	assert.False(t, claims.HasAnyRole(RoleStaff, RoleAdmin))
}
