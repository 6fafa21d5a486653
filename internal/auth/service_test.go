package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmachelo/pharmacy-backend/internal/admins"
	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/internal/users"
	pkgAuth "github.com/farmachelo/pharmacy-backend/pkg/auth"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/dbtest"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/security"
)

type recordingRevoker struct {
	revoked map[string]time.Duration
}

func (r *recordingRevoker) RevokeToken(_ context.Context, tokenID string, ttl time.Duration) error {
	if r.revoked == nil {
		r.revoked = map[string]time.Duration{}
	}
	r.revoked[tokenID] = ttl
	return nil
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (Service, *recordingRevoker) {
	t.Helper()
	base := repo.NewBase(dbtest.Open(t), time.Second)
	revoker := &recordingRevoker{}
	svc, err := NewService(ServiceParams{
		Users:   users.NewRepository(base),
		Admins:  admins.NewRepository(base),
		Revoker: revoker,
		Hasher: security.NewHasher(config.PasswordConfig{
			ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32,
		}),
		JWTConfig: config.JWTConfig{Secret: "secret", Issuer: "farmachelo", ExpirationMinutes: 30},
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc, revoker
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{
		Email:    "  Cliente@Example.com ",
		Password: "secreto1",
		Name:     "María Pérez",
	})
	require.NoError(t, err)
	assert.Equal(t, "cliente@example.com", registered.User.Email)
	assert.NotEmpty(t, registered.AccessToken)

	_, err = svc.Register(ctx, RegisterRequest{Email: "cliente@example.com", Password: "otro123", Name: "Dup"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	logged, err := svc.Login(ctx, LoginRequest{Email: "cliente@example.com", Password: "secreto1"})
	require.NoError(t, err)
	require.NotNil(t, logged.User.LastLoginAt)
	assert.False(t, logged.User.IsAdmin)

	_, err = svc.Login(ctx, LoginRequest{Email: "cliente@example.com", Password: "wrong"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.Login(ctx, LoginRequest{Email: "nadie@example.com", Password: "wrong"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestAdminFlows(t *testing.T) {
	svc, revoker := newTestService(t)
	ctx := context.Background()

	_, err := svc.AdminRegister(ctx, AdminRegisterRequest{Email: "admin@farmachelo.com", Password: "admin123", Name: "Administrador"})
	require.NoError(t, err)

	adminLogin, err := svc.AdminLogin(ctx, LoginRequest{Email: "admin@farmachelo.com", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, "admin@farmachelo.com", adminLogin.Admin.Email)

	cfg := config.JWTConfig{Secret: "secret", Issuer: "farmachelo", ExpirationMinutes: 30}
	claims, err := pkgAuth.ParseAccessToken(cfg, adminLogin.AccessToken, jwtTimeAt(fixedNow))
	require.NoError(t, err)
	assert.Equal(t, enums.PrincipalAdmin, claims.Kind)

	viaStorefront, err := svc.Login(ctx, LoginRequest{Email: "admin@farmachelo.com", Password: "admin123"})
	require.NoError(t, err)
	assert.True(t, viaStorefront.User.IsAdmin)

	principal, err := pkgAuth.PrincipalFromClaims(claims)
	require.NoError(t, err)
	me, err := svc.Me(ctx, principal)
	require.NoError(t, err)
	assert.True(t, me.IsAdmin)

	require.NoError(t, svc.Logout(ctx, principal))
	assert.Equal(t, 30*time.Minute, revoker.revoked[claims.ID])

	_, err = svc.AdminLogin(ctx, LoginRequest{Email: "admin@farmachelo.com", Password: "nope"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestCustomerCannotUseAdminLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterRequest{Email: "c@example.com", Password: "secreto1", Name: "C"})
	require.NoError(t, err)

	_, err = svc.AdminLogin(ctx, LoginRequest{Email: "c@example.com", Password: "secreto1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestMeForUnknownCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Me(context.Background(), pkgAuth.Principal{Kind: enums.PrincipalCustomer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
