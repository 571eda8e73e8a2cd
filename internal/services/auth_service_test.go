package services

import (
	"testing"
	"time"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginFixture(t *testing.T) (*fixture, *AuthResponse) {
	t.Helper()
	f := newFixture()
	_, err := f.auth.RegisterUser(f.ctx, RegisterUserRequest{
		Username: "carla",
		Password: "s3cret-pass",
		Role:     models.RoleTechnician,
	})
	require.NoError(t, err)
	resp, err := f.auth.LoginUser(f.ctx, LoginRequest{Username: "carla", Password: "s3cret-pass"})
	require.NoError(t, err)
	return f, resp
}

func TestAuthService_LoginIssuesTokenPair(t *testing.T) {
	_, resp := loginFixture(t)

	assert.NotEmpty(t, resp.AccessToken)
	assert.Len(t, resp.RefreshToken, 64)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.RefreshExpiresAt, time.Minute)

	claims, err := utils.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "carla", claims.Username)
	assert.Equal(t, models.RoleTechnician, claims.Role)
}

func TestAuthService_RefreshRotatesToken(t *testing.T) {
	f, first := loginFixture(t)

	second, err := f.auth.RefreshToken(f.ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, "carla", second.User.Username)

	_, err = f.auth.RefreshToken(f.ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh, "a used token cannot be exchanged twice")

	_, err = f.auth.RefreshToken(f.ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_RefreshRejections(t *testing.T) {
	f, resp := loginFixture(t)

	_, err := f.auth.RefreshToken(f.ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidRefresh)

	svc := f.auth.(*authService)
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = f.auth.RefreshToken(f.ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh, "expired")
}

func TestAuthService_LogoutRevokes(t *testing.T) {
	f, resp := loginFixture(t)

	require.NoError(t, f.auth.Logout(f.ctx, resp.RefreshToken))
	_, err := f.auth.RefreshToken(f.ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh)

	assert.NoError(t, f.auth.Logout(f.ctx, "unknown"))
}
