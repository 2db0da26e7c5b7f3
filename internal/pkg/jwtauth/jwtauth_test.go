package jwtauth_test

import (
	"testing"
	"time"

	"github.com/SangusIT/loanshare/internal/loans/domain/models"
	"github.com/SangusIT/loanshare/internal/pkg/jwtauth"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	u := models.User{ //nolint:exhaustruct
		ID:       7,
		Username: "carol",
		Role:     models.RoleUser,
	}

	token, err := jwtauth.GetToken(u, time.Minute, secret)
	require.NoError(t, err)

	claims, err := jwtauth.ValidateToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.UserID)
	require.Equal(t, "carol", claims.Username)
	require.Equal(t, models.RoleUser, claims.Role)
	require.Equal(t, "carol", claims.Subject)
}

func TestExpiredToken(t *testing.T) {
	u := models.User{ID: 7, Username: "carol", Role: models.RoleUser} //nolint:exhaustruct

	token, err := jwtauth.GetToken(u, -time.Minute, secret)
	require.NoError(t, err)

	_, err = jwtauth.ValidateToken(token, secret)
	require.Error(t, err)
}

func TestWrongSecret(t *testing.T) {
	u := models.User{ID: 7, Username: "carol", Role: models.RoleUser} //nolint:exhaustruct

	token, err := jwtauth.GetToken(u, time.Minute, secret)
	require.NoError(t, err)

	_, err = jwtauth.ValidateToken(token, "other-secret")
	require.Error(t, err)
}
