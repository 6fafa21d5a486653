package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/admins"
	"github.com/farmachelo/pharmacy-backend/internal/users"
	pkgAuth "github.com/farmachelo/pharmacy-backend/pkg/auth"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid email or password"

// Service defines the behavior needed by the auth controllers.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Me(ctx context.Context, principal pkgAuth.Principal) (*users.UserDTO, error)
	AdminRegister(ctx context.Context, req AdminRegisterRequest) (*AdminLoginResponse, error)
	AdminLogin(ctx context.Context, req LoginRequest) (*AdminLoginResponse, error)
	Logout(ctx context.Context, principal pkgAuth.Principal) error
}

type userRepository interface {
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type adminRepository interface {
	Create(ctx context.Context, admin *models.Admin) error
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Admin, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type tokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Users     userRepository
	Admins    adminRepository
	Revoker   tokenRevoker
	Hasher    *security.Hasher
	JWTConfig config.JWTConfig
	Now       func() time.Time
}

type service struct {
	users   userRepository
	admins  adminRepository
	revoker tokenRevoker
	hasher  *security.Hasher
	jwtCfg  config.JWTConfig
	now     func() time.Time
}

// NewService constructs the auth service.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Admins == nil {
		return nil, fmt.Errorf("admin repository is required")
	}
	if params.Revoker == nil {
		return nil, fmt.Errorf("token revoker is required")
	}
	if params.Hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		users:   params.Users,
		admins:  params.Admins,
		revoker: params.Revoker,
		hasher:  params.Hasher,
		jwtCfg:  params.JWTConfig,
		now:     now,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "hash password")
	}
	user, err := s.users.Create(ctx, users.CreateUserDTO{
		Email:          email,
		PasswordHash:   hash,
		Name:           strings.TrimSpace(req.Name),
		Phone:          req.Phone,
		Address:        req.Address,
		Identification: req.Identification,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, err
	}
	return s.customerSession(user)
}

// Login authenticates a customer. Admin credentials presented here are
// accepted and produce an admin principal.
func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !s.verify(req.Password, user.PasswordHash) || !user.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		now := s.now()
		if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
			return nil, err
		}
		user.LastLoginAt = &now
		return s.customerSession(user)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	admin, err := s.authenticateAdmin(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}
	issued, err := s.mint(admin.ID, enums.PrincipalAdmin, admin.Email)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{AccessToken: issued.Token, TokenType: tokenTypeBearer, ExpiresAt: issued.ExpiresAt, User: users.FromAdmin(admin)}, nil
}

func (s *service) Me(ctx context.Context, principal pkgAuth.Principal) (*users.UserDTO, error) {
	switch principal.Kind {
	case enums.PrincipalCustomer:
		user, err := s.users.FindByID(ctx, principal.ID)
		if err != nil {
			return nil, notFoundOr(err, "user not found")
		}
		return users.FromModel(user), nil
	case enums.PrincipalAdmin:
		admin, err := s.admins.FindByID(ctx, principal.ID)
		if err != nil {
			return nil, notFoundOr(err, "admin not found")
		}
		return users.FromAdmin(admin), nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown principal")
	}
}

func (s *service) AdminRegister(ctx context.Context, req AdminRegisterRequest) (*AdminLoginResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if _, err := s.admins.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "admin already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "hash password")
	}
	admin := &models.Admin{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
		IsActive:     true,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "admin already registered")
		}
		return nil, err
	}
	return s.adminSession(admin)
}

func (s *service) AdminLogin(ctx context.Context, req LoginRequest) (*AdminLoginResponse, error) {
	admin, err := s.authenticateAdmin(ctx, normalizeEmail(req.Email), req.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.admins.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		return nil, err
	}
	admin.LastLoginAt = &now
	return s.adminSession(admin)
}

// Logout revokes the presented token until it would have expired anyway.
func (s *service) Logout(ctx context.Context, principal pkgAuth.Principal) error {
	if principal.TokenID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "token has no identifier")
	}
	ttl := principal.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.revoker.RevokeToken(ctx, principal.TokenID, ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke token")
	}
	return nil
}

func (s *service) authenticateAdmin(ctx context.Context, email, password string) (*models.Admin, error) {
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, err
	}
	if !s.verify(password, admin.PasswordHash) || !admin.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return admin, nil
}

func (s *service) verify(password, encoded string) bool {
	ok, err := s.hasher.Verify(password, encoded)
	return err == nil && ok
}

func (s *service) customerSession(user *models.User) (*LoginResponse, error) {
	issued, err := s.mint(user.ID, enums.PrincipalCustomer, user.Email)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{AccessToken: issued.Token, TokenType: tokenTypeBearer, ExpiresAt: issued.ExpiresAt, User: users.FromModel(user)}, nil
}

func (s *service) adminSession(admin *models.Admin) (*AdminLoginResponse, error) {
	issued, err := s.mint(admin.ID, enums.PrincipalAdmin, admin.Email)
	if err != nil {
		return nil, err
	}
	return &AdminLoginResponse{AccessToken: issued.Token, TokenType: tokenTypeBearer, ExpiresAt: issued.ExpiresAt, Admin: admins.FromModel(admin)}, nil
}

func (s *service) mint(id uuid.UUID, kind enums.PrincipalKind, email string) (pkgAuth.Issued, error) {
	issued, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now(), pkgAuth.AccessTokenPayload{
		SubjectID: id,
		Kind:      kind,
		Email:     email,
	})
	if err != nil {
		return pkgAuth.Issued{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return issued, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
