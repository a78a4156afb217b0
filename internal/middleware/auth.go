package middleware

import (
	"errors"
	"escrita_backend/internal/model"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/service"
	"escrita_backend/internal/util"
	"escrita_backend/pkg/logger"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware 从 Authorization: Bearer 或 ?token= 读取令牌
func AuthMiddleware(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			util.Unauthorized(c, "Authentication token missing")
			return
		}

		claims, err := auth.VerifyToken(c.Request.Context(), tokenString)
		if err != nil {
			switch {
			case errors.Is(err, util.ErrTokenExpired):
				util.Unauthorized(c, "Token expired")
			case errors.Is(err, util.ErrTokenInvalid):
				util.Unauthorized(c, "Invalid token")
			default:
				util.Fail(c, err)
			}
			return
		}

		c.Set(util.ContextUserKey, claims)
		c.Next()
	}
}

// RoleMiddleware 角色从数据库读取，管理员拥有全部权限
func RoleMiddleware(users *repository.UserRepository, roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := util.CurrentUserID(c)
		if userID == 0 {
			util.Unauthorized(c, "Authentication required")
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			if repository.IsNotFound(err) {
				util.Unauthorized(c, "User no longer exists")
				return
			}
			logger.Log.Error("Failed to load user role", zap.Uint("user_id", userID), zap.Error(err))
			util.Fail(c, util.NewInternalError("could not check permissions", err))
			return
		}

		if user.Role == model.Admin {
			c.Next()
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		util.Forbidden(c)
	}
}
