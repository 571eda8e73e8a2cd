package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/pkg/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// --- Custom Service Errors ---
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameExists     = errors.New("username already exists")
	ErrRoleNotFound       = errors.New("specified role not found")
	ErrTokenGeneration    = errors.New("failed to generate token")
	ErrInvalidRefresh     = errors.New("refresh token is invalid or expired")
)

const defaultRefreshTTL = 7 * 24 * time.Hour

// --- Data Transfer Objects (DTOs) ---

// LoginRequest DTO
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterUserRequest DTO
type RegisterUserRequest struct {
	Username string  `json:"username" binding:"required"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Password string  `json:"password" binding:"required,min=8"`
	FullName *string `json:"full_name"`
	Role     string  `json:"role"` // Admin, Technician or Receptionist; Receptionist when empty
}

// RefreshRequest DTO, also accepted by logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResponse DTO
type AuthResponse struct {
	User             *models.User `json:"user"`
	AccessToken      string       `json:"access_token"`
	ExpiresAt        time.Time    `json:"expires_at"`
	RefreshToken     string       `json:"refresh_token"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
}

// --- AuthService Interface ---
type AuthService interface {
	RegisterUser(ctx context.Context, req RegisterUserRequest) (*models.User, error)
	LoginUser(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	GetUserProfile(ctx context.Context, userID int64) (*models.User, error)
	ListTechnicians(ctx context.Context) ([]models.User, error)
	// RefreshToken exchanges a refresh token for a new token pair. The old
	// refresh token stops working.
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	// Logout revokes a refresh token. Unknown tokens are ignored.
	Logout(ctx context.Context, refreshToken string) error
}

// --- authService Implementation ---
type authService struct {
	tx         repositories.Transactor
	authRepo   repositories.AuthRepository
	tokenRepo  repositories.RefreshTokenRepository
	refreshTTL time.Duration
	now        func() time.Time
}

// NewAuthService creates a new instance of AuthService.
// Access token signing is configured globally through utils.ConfigureJWT.
func NewAuthService(tx repositories.Transactor, authRepo repositories.AuthRepository, tokenRepo repositories.RefreshTokenRepository, refreshTTL time.Duration) AuthService {
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &authService{
		tx:         tx,
		authRepo:   authRepo,
		tokenRepo:  tokenRepo,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RegisterUser handles the business logic for user registration.
func (s *authService) RegisterUser(ctx context.Context, req RegisterUserRequest) (*models.User, error) {
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = models.RoleReceptionist
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: '%s'", ErrRoleNotFound, req.Role)
	}

	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    utils.TrimmedPtr(req.Email),
		FullName: utils.TrimmedPtr(req.FullName),
		Role:     role,
		IsActive: true,
	}
	if _, err := s.authRepo.CreateUser(ctx, nil, &user, string(hashedPasswordBytes)); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	utils.LogInfo("User registered", map[string]interface{}{"user_id": user.ID, "role": user.Role})
	return &user, nil
}

// LoginUser handles user login and token generation.
func (s *authService) LoginUser(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, storedHashedPassword, err := s.authRepo.FindUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login attempt failed: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedHashedPassword), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueTokens(ctx, nil, user)
}

// RefreshToken rotates a refresh token inside one transaction, so two
// concurrent exchanges of the same token cannot both succeed.
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var resp *AuthResponse
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		stored, err := s.tokenRepo.GetByHashForUpdate(ctx, tx, hashRefreshToken(refreshToken))
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return fmt.Errorf("failed to load refresh token: %w", err)
		}
		now := s.now()
		if !stored.Usable(now) {
			return ErrInvalidRefresh
		}
		user, err := s.authRepo.FindUserByID(ctx, tx, stored.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return fmt.Errorf("failed to load user %d: %w", stored.UserID, err)
		}
		if !user.IsActive {
			return ErrInvalidRefresh
		}
		if err := s.tokenRepo.Revoke(ctx, tx, stored.ID, now); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		resp, err = s.issueTokens(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	return s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		stored, err := s.tokenRepo.GetByHashForUpdate(ctx, tx, hashRefreshToken(refreshToken))
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load refresh token: %w", err)
		}
		if err := s.tokenRepo.Revoke(ctx, tx, stored.ID, s.now()); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		return nil
	})
}

func (s *authService) issueTokens(ctx context.Context, executor repositories.SQLExecutor, user *models.User) (*AuthResponse, error) {
	accessToken, expiresAt, err := utils.GenerateAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	stored := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashRefreshToken(raw),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.tokenRepo.Create(ctx, executor, stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return &AuthResponse{
		User:             user,
		AccessToken:      accessToken,
		ExpiresAt:        expiresAt,
		RefreshToken:     raw,
		RefreshExpiresAt: stored.ExpiresAt,
	}, nil
}

func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// GetUserProfile retrieves a user's profile by their ID.
func (s *authService) GetUserProfile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.authRepo.FindUserByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to retrieve user profile: %w", err)
	}
	return user, nil
}

// ListTechnicians returns the active users that can be assigned to tickets.
func (s *authService) ListTechnicians(ctx context.Context) ([]models.User, error) {
	users, err := s.authRepo.ListUsersByRole(ctx, models.RoleTechnician, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	return users, nil
}
