package controller

import (
	"escrita_backend/internal/service"
	"escrita_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AchievementController struct {
	AchievementService *service.AchievementService
}

func NewAchievementController(achievementService *service.AchievementService) *AchievementController {
	return &AchievementController{AchievementService: achievementService}
}

// @Summary 获取用户成就
// @Description 按解锁时间倒序返回当前用户已解锁的成就
// @Tags 成就系统
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.UserAchievement}
// @Router /api/users/achievements [get]
func (c *AchievementController) GetUserAchievements(ctx *gin.Context) {
	achievements, err := c.AchievementService.GetUserAchievements(ctx.Request.Context(), util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, achievements)
}

// @Summary 最近解锁的成就
// @Tags 成就系统
// @Produce json
// @Security BearerAuth
// @Param limit query int false "数量，默认 5"
// @Success 200 {object} util.Response{data=[]service.UserAchievement}
// @Router /api/users/achievements/recent [get]
func (c *AchievementController) GetRecentAchievements(ctx *gin.Context) {
	limit := util.QueryInt(ctx, "limit", 0)
	achievements, err := c.AchievementService.GetRecentAchievements(ctx.Request.Context(), util.CurrentUserID(ctx), limit)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, achievements)
}

// @Summary 成就目录
// @Description 全部成就及当前用户的解锁状态
// @Tags 成就系统
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.CatalogueEntry}
// @Router /api/achievements [get]
func (c *AchievementController) ListCatalogue(ctx *gin.Context) {
	entries, err := c.AchievementService.ListAchievements(ctx.Request.Context(), util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, entries)
}
