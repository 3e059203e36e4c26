package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/riskreview-backend/internal/platform/apierr"
	"github.com/yungbote/riskreview-backend/internal/platform/ctxutil"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

func TestTokenRoundTripAttachesCaller(t *testing.T) {
	as := NewAuthService(logger.Nop(), "test-secret")
	uid := uuid.New()
	token, err := as.IssueToken(uid, ctxutil.RoleAdmin, time.Minute)
	require.NoError(t, err)

	ctx, err := as.SetContextFromToken(context.Background(), token)
	require.NoError(t, err)
	rd := ctxutil.GetRequestData(ctx)
	require.NotNil(t, rd)
	assert.Equal(t, uid, rd.UserID)
	assert.True(t, rd.IsAdmin())
}

func TestRejectedTokens(t *testing.T) {
	as := NewAuthService(logger.Nop(), "test-secret")
	other := NewAuthService(logger.Nop(), "other-secret")
	uid := uuid.New()

	claims := &JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uid.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	foreign, err := other.IssueToken(uid, "", time.Minute)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "not-a-uuid",
	}}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":       "",
		"garbage":     "abc.def.ghi",
		"expired":     expired,
		"wrong key":   foreign,
		"bad subject": badSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := as.SetContextFromToken(context.Background(), token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apierr.ErrUnauthorized))
		})
	}
}
