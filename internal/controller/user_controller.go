package controller

import (
	"escrita_backend/internal/service"
	"escrita_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	UserService *service.UserService
	AuthService *service.AuthService
}

func NewUserController(userService *service.UserService, authService *service.AuthService) *UserController {
	return &UserController{UserService: userService, AuthService: authService}
}

// GetProfile godoc
// @Summary 当前用户信息
// @Tags 用户
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/users/me [get]
func (c *UserController) GetProfile(ctx *gin.Context) {
	user, err := c.UserService.GetProfile(ctx.Request.Context(), util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UpdateProfile godoc
// @Summary 修改个人资料
// @Tags 用户
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.UpdateProfileInput true "姓名和简介"
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/users/me [patch]
func (c *UserController) UpdateProfile(ctx *gin.Context) {
	var req service.UpdateProfileInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.BindError(err))
		return
	}

	user, err := c.UserService.UpdateProfile(ctx.Request.Context(), util.CurrentUserID(ctx), req)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// ChangePassword godoc
// @Summary 修改密码
// @Tags 用户
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.ChangePasswordInput true "当前密码和新密码"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.ErrorResponse "当前密码错误"
// @Router /api/users/me/password [patch]
func (c *UserController) ChangePassword(ctx *gin.Context) {
	var req service.ChangePasswordInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.BindError(err))
		return
	}

	if err := c.AuthService.ChangePassword(ctx.Request.Context(), util.CurrentUserID(ctx), req); err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Password updated"})
}

// UploadAvatar godoc
// @Summary 上传头像
// @Description JPEG / PNG，最大 2MB
// @Tags 用户
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param file formData file true "头像"
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/users/me/avatar [post]
func (c *UserController) UploadAvatar(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		util.Fail(ctx, util.NewValidationError("No file uploaded", util.FieldError{Field: "file", Message: "is required"}))
		return
	}

	user, err := c.UserService.UploadAvatar(ctx.Request.Context(), util.CurrentUserID(ctx), file)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// GetStats godoc
// @Summary 学习统计
// @Tags 用户
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.UserStats}
// @Router /api/users/stats [get]
func (c *UserController) GetStats(ctx *gin.Context) {
	stats, err := c.UserService.GetStats(ctx.Request.Context(), util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, stats)
}
