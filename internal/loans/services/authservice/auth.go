package authservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SangusIT/loanshare/internal/loans/domain/models"
	"github.com/SangusIT/loanshare/internal/pkg/config"
	"github.com/SangusIT/loanshare/internal/pkg/jwtauth"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	userRepo Repository
	cfg      config.Auth
}

var (
	ErrNotAllowed  = errors.New("only admins can create admin")
	ErrEmptyFields = errors.New("username and password required")
)

type Repository interface {
	CreateUser(context.Context, models.User) (int64, error)
	GetUser(context.Context, string) (models.User, error)
}

func New(userRepo Repository, cfg config.Auth) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		cfg:      cfg,
	}
}

func (as *AuthService) CreateUser(ctx context.Context, req CreateUserRequest) (string, error) {
	if req.Username == "" || req.Password == "" {
		return "", ErrEmptyFields
	}

	if req.Role == "" {
		req.Role = models.RoleUser
	}

	if req.Role == models.RoleAdmin { // только админы могут создавать админов
		claims, err := as.Identity(req.Token)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotAllowed, err.Error())
		}

		if claims.Role != models.RoleAdmin {
			return "", ErrNotAllowed
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("generate from password error: %w", err)
	}

	u := models.User{ //nolint:exhaustruct
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
		CreatedAt:    time.Now(),
	}

	id, err := as.userRepo.CreateUser(ctx, u)
	if err != nil {
		return "", fmt.Errorf("create user error: %w", err)
	}

	u.ID = id

	token, err := jwtauth.GetToken(u, as.cfg.TTL, as.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("can't get token error: %w", err)
	}

	return token, nil
}

// Identity resolves a bearer token into the claims it carries.
func (as *AuthService) Identity(token string) (jwtauth.Claims, error) {
	claims, err := jwtauth.ValidateToken(token, as.cfg.Secret)
	if err != nil {
		return jwtauth.Claims{}, fmt.Errorf("validate token error: %w", err)
	}

	return claims, nil
}

func (as *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	u, err := as.userRepo.GetUser(ctx, username)
	if err != nil {
		return "", fmt.Errorf("get user error: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if err != nil {
		return "", fmt.Errorf("compare password error: %w", err)
	}

	token, err := jwtauth.GetToken(u, as.cfg.TTL, as.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("can't get token error: %w", err)
	}

	return token, nil
}
