package service

import (
	"context"
	"escrita_backend/internal/util"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Register(ctx, RegisterInput{Name: "Maria Clara", Email: "Maria@Example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "maria@example.com", res.User.Email)
	assert.Equal(t, "https://ui-avatars.com/api/?name=Maria%20Clara", res.User.AvatarURL)
	assert.NotEqual(t, "secret123", res.User.Password)

	claims, err := env.auth.VerifyToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	_, err = env.auth.Register(ctx, RegisterInput{Name: "Outra", Email: "maria@example.com", Password: "secret123"})
	assert.True(t, util.IsKind(err, util.KindConflict))

	login, err := env.auth.Login(ctx, LoginInput{Email: "maria@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	env.email.Wait()
	assert.Contains(t, env.provider.templates(), TemplateWelcome)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.student(t, "wagner")

	_, wrongPassword := env.auth.Login(ctx, LoginInput{Email: "wagner@example.com", Password: "nope"})
	_, unknownEmail := env.auth.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "password"})

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.True(t, util.IsKind(wrongPassword, util.KindUnauthorized))
}

func TestLogin_UnknownEmailStillComparesHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.student(t, "yara")

	var hashes [][]byte
	original := comparePassword
	comparePassword = func(hash, password []byte) error {
		hashes = append(hashes, hash)
		return original(hash, password)
	}
	t.Cleanup(func() { comparePassword = original })

	_, err := env.auth.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "password"})
	require.ErrorIs(t, err, util.ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, LoginInput{Email: "yara@example.com", Password: "nope"})
	require.ErrorIs(t, err, util.ErrInvalidCredentials)

	require.Len(t, hashes, 2)
	assert.Equal(t, dummyPasswordHash(), hashes[0])

	cost, err := bcrypt.Cost(hashes[0])
	require.NoError(t, err)
	assert.Equal(t, BcryptCost, cost)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.student(t, "xenia")

	login, err := env.auth.Login(ctx, LoginInput{Email: "xenia@example.com", Password: "password"})
	require.NoError(t, err)

	claims, err := env.auth.VerifyToken(ctx, login.Token)
	require.NoError(t, err)
	require.NoError(t, env.auth.Logout(ctx, claims))

	_, err = env.auth.VerifyToken(ctx, login.Token)
	assert.ErrorIs(t, err, util.ErrTokenInvalid)
}

func TestVerifyToken_ExpiredAndInvalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.student(t, "yuri")

	expired, err := util.GenerateJWT(user, env.cfg.JWT.Secret, -time.Minute)
	require.NoError(t, err)
	_, err = env.auth.VerifyToken(ctx, expired)
	assert.ErrorIs(t, err, util.ErrTokenExpired)

	forged, err := util.GenerateJWT(user, "another-secret", time.Hour)
	require.NoError(t, err)
	_, err = env.auth.VerifyToken(ctx, forged)
	assert.ErrorIs(t, err, util.ErrTokenInvalid)

	_, err = env.auth.VerifyToken(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, util.ErrTokenInvalid)
}

var resetLink = regexp.MustCompile(`reset-password/([0-9a-f]{64})`)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.student(t, "zeca")

	require.NoError(t, env.auth.ForgotPassword(ctx, "nobody@example.com"))
	require.NoError(t, env.auth.ForgotPassword(ctx, "zeca@example.com"))
	env.email.Wait()

	env.provider.mu.Lock()
	require.Len(t, env.provider.sent, 1)
	match := resetLink.FindStringSubmatch(env.provider.sent[0].HTML)
	env.provider.mu.Unlock()
	require.Len(t, match, 2)

	require.NoError(t, env.auth.ResetPassword(ctx, ResetPasswordInput{Token: match[1], Password: "nova-senha"}))

	err := env.auth.ResetPassword(ctx, ResetPasswordInput{Token: match[1], Password: "outra-senha"})
	assert.True(t, util.IsKind(err, util.KindValidation))

	_, err = env.auth.Login(ctx, LoginInput{Email: "zeca@example.com", Password: "nova-senha"})
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.student(t, "alan")

	err := env.auth.ChangePassword(ctx, user.ID, ChangePasswordInput{CurrentPassword: "wrong", NewPassword: "another1"})
	assert.True(t, util.IsKind(err, util.KindValidation))

	require.NoError(t, env.auth.ChangePassword(ctx, user.ID, ChangePasswordInput{CurrentPassword: "password", NewPassword: "another1"}))
	_, err = env.auth.Login(ctx, LoginInput{Email: "alan@example.com", Password: "another1"})
	assert.NoError(t, err)
}
