package controller

import (
	"escrita_backend/internal/service"
	"escrita_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	SubmissionService *service.SubmissionService
}

func NewSubmissionController(submissionService *service.SubmissionService) *SubmissionController {
	return &SubmissionController{SubmissionService: submissionService}
}

// swagger:model SubmitWritingRequest
type SubmitWritingRequest struct {
	Title   string  `json:"title" binding:"required,min=3,max=255"`
	Content string  `json:"content" binding:"required"`
	FileURL *string `json:"file_url" binding:"omitempty,url"`
}

// swagger:model ReviewRequest
type ReviewRequest struct {
	Feedback string `json:"feedback" binding:"required"`
	Score    *int   `json:"score" binding:"required,min=0,max=1000"`
}

// Submit godoc
// @Summary 提交作文
// @Description 新作文状态为 pending，同时评估提交类成就
// @Tags 作文
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body SubmitWritingRequest true "作文内容"
// @Success 201 {object} util.Response{data=service.SubmissionResult}
// @Failure 400 {object} util.ErrorResponse
// @Router /api/submissions [post]
func (c *SubmissionController) Submit(ctx *gin.Context) {
	var req SubmitWritingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.BindError(err))
		return
	}

	result, err := c.SubmissionService.SubmitWriting(ctx.Request.Context(), service.SubmitInput{
		UserID:  util.CurrentUserID(ctx),
		Title:   req.Title,
		Content: req.Content,
		FileURL: req.FileURL,
	})
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// UploadFile godoc
// @Summary 上传作文附件
// @Description 支持 PDF 和 Word，最大 5MB
// @Tags 作文
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param file formData file true "附件"
// @Success 200 {object} util.Response{data=object}
// @Router /api/submissions/upload [post]
func (c *SubmissionController) UploadFile(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		util.Fail(ctx, util.NewValidationError("No file uploaded", util.FieldError{Field: "file", Message: "is required"}))
		return
	}

	url, err := c.SubmissionService.UploadSubmissionFile(ctx.Request.Context(), file)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"file_url": url})
}

// List godoc
// @Summary 我的作文
// @Tags 作文
// @Produce  json
// @Security BearerAuth
// @Param status query string false "pending 或 completed"
// @Param limit query int false "每页数量"
// @Param offset query int false "偏移量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/submissions [get]
func (c *SubmissionController) List(ctx *gin.Context) {
	page, err := c.SubmissionService.ListUserSubmissions(ctx.Request.Context(), util.CurrentUserID(ctx), service.ListSubmissionsInput{
		Status: ctx.Query("status"),
		Limit:  util.QueryInt(ctx, "limit", util.DefaultPageLimit),
		Offset: util.QueryInt(ctx, "offset", 0),
	})
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, page)
}

// Stats godoc
// @Summary 作文统计
// @Tags 作文
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.SubmissionStats}
// @Router /api/submissions/stats [get]
func (c *SubmissionController) Stats(ctx *gin.Context) {
	stats, err := c.SubmissionService.GetSubmissionStats(ctx.Request.Context(), util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// ListPending godoc
// @Summary 待批改作文
// @Description 讲师和管理员可见，按提交时间先后排列
// @Tags 作文批改
// @Produce  json
// @Security BearerAuth
// @Param limit query int false "每页数量"
// @Param offset query int false "偏移量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/submissions/pending [get]
func (c *SubmissionController) ListPending(ctx *gin.Context) {
	page, err := c.SubmissionService.ListPending(ctx.Request.Context(),
		util.QueryInt(ctx, "limit", util.DefaultPageLimit),
		util.QueryInt(ctx, "offset", 0),
	)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, page)
}

// Get godoc
// @Summary 作文详情
// @Tags 作文
// @Produce  json
// @Security BearerAuth
// @Param id path int true "作文ID"
// @Success 200 {object} util.Response{data=service.SubmissionView}
// @Failure 404 {object} util.ErrorResponse
// @Router /api/submissions/{id} [get]
func (c *SubmissionController) Get(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}

	view, err := c.SubmissionService.GetSubmission(ctx.Request.Context(), id, util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// Feedback godoc
// @Summary 批改反馈
// @Tags 作文
// @Produce  json
// @Security BearerAuth
// @Param id path int true "作文ID"
// @Success 200 {object} util.Response{data=service.Feedback}
// @Failure 404 {object} util.ErrorResponse "尚未批改"
// @Router /api/submissions/{id}/feedback [get]
func (c *SubmissionController) Feedback(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}

	feedback, err := c.SubmissionService.GetFeedback(ctx.Request.Context(), id, util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, feedback)
}

// Update godoc
// @Summary 修改作文
// @Description 只能修改自己尚未批改的作文
// @Tags 作文
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path int true "作文ID"
// @Param   body body service.UpdateSubmissionInput true "修改内容"
// @Success 200 {object} util.Response{data=model.WritingSubmission}
// @Failure 409 {object} util.ErrorResponse "已批改"
// @Router /api/submissions/{id} [put]
func (c *SubmissionController) Update(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	var req service.UpdateSubmissionInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.BindError(err))
		return
	}

	sub, err := c.SubmissionService.UpdateSubmission(ctx.Request.Context(), id, util.CurrentUserID(ctx), req)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// Delete godoc
// @Summary 删除作文
// @Tags 作文
// @Produce  json
// @Security BearerAuth
// @Param id path int true "作文ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.ErrorResponse "已批改"
// @Router /api/submissions/{id} [delete]
func (c *SubmissionController) Delete(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}

	if err := c.SubmissionService.DeleteSubmission(ctx.Request.Context(), id, util.CurrentUserID(ctx)); err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id})
}

// Review godoc
// @Summary 批改作文
// @Description 分数 0-1000，每篇作文只能批改一次
// @Tags 作文批改
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path int true "作文ID"
// @Param   body body ReviewRequest true "批改结果"
// @Success 200 {object} util.Response{data=service.SubmissionResult}
// @Failure 409 {object} util.ErrorResponse "已批改"
// @Router /api/submissions/{id}/review [post]
func (c *SubmissionController) Review(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	var req ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.BindError(err))
		return
	}

	result, err := c.SubmissionService.ReviewSubmission(ctx.Request.Context(), id, service.ReviewInput{
		ReviewerID: util.CurrentUserID(ctx),
		Feedback:   req.Feedback,
		Score:      *req.Score,
	})
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, result)
}
