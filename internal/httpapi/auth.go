package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"stockman/internal/domain"
	"stockman/internal/store"
)

// PasswordStore persists the single app password the desktop shell unlocks
// with.
type PasswordStore interface {
	GetAppPasswordHash(ctx context.Context) (string, error)
	SetAppPasswordHash(ctx context.Context, hash string) error
}

type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	passwords PasswordStore
}

type appClaims struct {
	jwtlib.RegisteredClaims
}

func NewAuthManager(secret string, tokenTTL time.Duration, passwords PasswordStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		passwords: passwords,
	}
}

// Login verifies the app password and issues a token. On a fresh database
// with no password stored yet, the submitted password becomes the app
// password.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	password := strings.TrimSpace(req.Password)
	if password == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	hash, err := a.passwords.GetAppPasswordHash(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := a.setPassword(ctx, password); err != nil {
			return domain.LoginResponse{}, err
		}
	case err != nil:
		return domain.LoginResponse{}, err
	default:
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			return domain.LoginResponse{}, errors.New("invalid credentials")
		}
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ChangePassword swaps the app password after verifying the old one. The old
// password check is skipped when no password has been stored yet.
func (a *AuthManager) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) error {
	newPassword := strings.TrimSpace(req.NewPassword)
	if len(newPassword) < 4 {
		return errors.New("password must be at least 4 characters")
	}

	hash, err := a.passwords.GetAppPasswordHash(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(req.OldPassword))) != nil {
			return errors.New("invalid credentials")
		}
	}

	return a.setPassword(ctx, newPassword)
}

func (a *AuthManager) setPassword(ctx context.Context, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return a.passwords.SetAppPasswordHash(ctx, string(hash))
}

func (a *AuthManager) ParseToken(tokenStr string) error {
	claims := &appClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return errors.New("invalid or expired token")
	}
	return nil
}

func (a *AuthManager) sign(expiresAt time.Time) (string, error) {
	claims := appClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "stockman",
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
