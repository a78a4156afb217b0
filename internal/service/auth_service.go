package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"escrita_backend/internal/config"
	"escrita_backend/internal/model"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/util"
	"escrita_backend/pkg/logger"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	BcryptCost         = 10
	PasswordResetTTL   = time.Hour
	defaultAvatarURL   = "https://ui-avatars.com/api/?name="
	resetTokenByteSize = 32
)

var (
	comparePassword = bcrypt.CompareHashAndPassword

	// dummyPasswordHash 邮箱不存在时用它比较一次，使响应时间与密码错误一致
	dummyPasswordHash = sync.OnceValue(func() []byte {
		hash, err := bcrypt.GenerateFromPassword([]byte("escrita-unknown-account"), BcryptCost)
		if err != nil {
			panic(err)
		}
		return hash
	})
)

// AuthMailer 账号相关的邮件通知
type AuthMailer interface {
	SendWelcome(user *model.User)
	SendPasswordReset(user *model.User, token string)
}

type AuthService struct {
	UserRepo *repository.UserRepository
	Tokens   TokenStore
	Mailer   AuthMailer
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, tokens TokenStore, mailer AuthMailer, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Tokens:   tokens,
		Mailer:   mailer,
		Cfg:      cfg,
	}
}

type RegisterInput struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResult 注册和登录的返回值，User 不含密码哈希
type AuthResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)

	exists, err := s.UserRepo.ExistsByEmail(ctx, email)
	if err != nil {
		logger.Log.Error("Failed to check email", zap.Error(err))
		return nil, util.NewInternalError("could not register user", err)
	}
	if exists {
		return nil, util.ErrEmailRegistered
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), BcryptCost)
	if err != nil {
		return nil, util.NewInternalError("could not register user", err)
	}

	user := &model.User{
		Name:      name,
		Email:     email,
		Password:  string(hash),
		AvatarURL: defaultAvatarURL + strings.ReplaceAll(url.QueryEscape(name), "+", "%20"),
		Role:      model.Student,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.ErrEmailRegistered
		}
		logger.Log.Error("Failed to create user", zap.Error(err))
		return nil, util.NewInternalError("could not register user", err)
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, util.NewInternalError("could not issue token", err)
	}

	logger.Log.Info("User registered", zap.Uint("user_id", user.ID))
	if s.Mailer != nil {
		s.Mailer.SendWelcome(user)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// Login 邮箱不存在和密码错误返回同一个错误
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	user, err := s.UserRepo.FindByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if repository.IsNotFound(err) {
			_ = comparePassword(dummyPasswordHash(), []byte(in.Password))
			return nil, util.ErrInvalidCredentials
		}
		logger.Log.Error("Failed to load user for login", zap.Error(err))
		return nil, util.NewInternalError("could not log in", err)
	}

	if err := comparePassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, util.NewInternalError("could not issue token", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// VerifyToken 解析令牌并检查是否已注销
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*util.Claims, error) {
	claims, err := util.ParseJWT(token, s.Cfg.JWT.Secret)
	if err != nil {
		return nil, err
	}
	if claims.ID != "" && s.Tokens != nil {
		revoked, err := s.Tokens.IsRevoked(ctx, claims.ID)
		if err != nil {
			logger.Log.Error("Failed to check token revocation", zap.Error(err))
			return nil, util.NewInternalError("could not verify token", err)
		}
		if revoked {
			return nil, util.ErrTokenInvalid
		}
	}
	return claims, nil
}

// Logout 令牌在剩余有效期内进入黑名单
func (s *AuthService) Logout(ctx context.Context, claims *util.Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.Tokens.Revoke(ctx, claims.ID, ttl); err != nil {
		logger.Log.Error("Failed to revoke token", zap.Error(err))
		return util.NewInternalError("could not log out", err)
	}
	return nil
}

// ForgotPassword 无论邮箱是否存在都返回成功
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.UserRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !repository.IsNotFound(err) {
			logger.Log.Error("Failed to load user for password reset", zap.Error(err))
		}
		return nil
	}

	token, err := randomToken()
	if err != nil {
		return util.NewInternalError("could not create reset token", err)
	}
	if err := s.Tokens.SaveResetToken(ctx, token, user.ID, PasswordResetTTL); err != nil {
		logger.Log.Error("Failed to store reset token", zap.Error(err))
		return util.NewInternalError("could not create reset token", err)
	}
	if s.Mailer != nil {
		s.Mailer.SendPasswordReset(user, token)
	}
	return nil
}

type ResetPasswordInput struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	userID, err := s.Tokens.ConsumeResetToken(ctx, in.Token)
	if err != nil {
		return util.NewInternalError("could not reset password", err)
	}
	if userID == 0 {
		return util.NewValidationError("Invalid or expired reset token")
	}
	return s.setPassword(ctx, userID, in.Password)
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6,max=72"`
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return util.ErrUserNotFound
		}
		return util.NewInternalError("could not change password", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.CurrentPassword)); err != nil {
		return util.NewValidationError("Current password is incorrect",
			util.FieldError{Field: "current_password", Message: "is incorrect"})
	}
	return s.setPassword(ctx, userID, in.NewPassword)
}

func (s *AuthService) setPassword(ctx context.Context, userID uint, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return util.NewInternalError("could not update password", err)
	}
	if err := s.UserRepo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		logger.Log.Error("Failed to update password", zap.Uint("user_id", userID), zap.Error(err))
		return util.NewInternalError("could not update password", err)
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, resetTokenByteSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
