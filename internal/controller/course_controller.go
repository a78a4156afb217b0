package controller

import (
	"escrita_backend/internal/service"
	"escrita_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService *service.CourseService
}

func NewCourseController(courseService *service.CourseService) *CourseController {
	return &CourseController{CourseService: courseService}
}

// GetAllCourses godoc
// @Summary 课程列表
// @Description 返回全部课程及当前用户的学习进度
// @Tags 课程
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.CourseSummary}
// @Router /api/courses [get]
func (c *CourseController) GetAllCourses(ctx *gin.Context) {
	courses, err := c.CourseService.GetAllCourses(ctx.Request.Context(), util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, courses)
}

// GetRecentCourses godoc
// @Summary 最近学习的课程
// @Tags 课程
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.CourseSummary}
// @Router /api/courses/recent [get]
func (c *CourseController) GetRecentCourses(ctx *gin.Context) {
	courses, err := c.CourseService.GetRecentCourses(ctx.Request.Context(), util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, courses)
}

// GetCourse godoc
// @Summary 课程详情
// @Description 课时按模块分组，并标记当前用户是否已完成
// @Tags 课程
// @Produce  json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.CourseDetail}
// @Failure 404 {object} util.ErrorResponse
// @Router /api/courses/{id} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}

	course, err := c.CourseService.GetCourse(ctx.Request.Context(), id, util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// GetCourseProgress godoc
// @Summary 课程进度
// @Tags 课程
// @Produce  json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.CourseProgress}
// @Router /api/courses/{id}/progress [get]
func (c *CourseController) GetCourseProgress(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}

	progress, err := c.CourseService.GetCourseProgress(ctx.Request.Context(), id, util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// MarkLessonComplete godoc
// @Summary 完成课时
// @Description 重复调用不会产生重复记录
// @Tags 课程
// @Produce  json
// @Security BearerAuth
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response{data=service.LessonCompletion}
// @Failure 404 {object} util.ErrorResponse
// @Router /api/courses/lessons/{id}/complete [post]
func (c *CourseController) MarkLessonComplete(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}

	result, err := c.CourseService.MarkLessonComplete(ctx.Request.Context(), id, util.CurrentUserID(ctx))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// CreateCourse godoc
// @Summary 创建课程
// @Tags 课程管理
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.CreateCourseInput true "课程信息"
// @Success 201 {object} util.Response{data=model.Course}
// @Failure 403 {object} util.ErrorResponse
// @Router /api/courses [post]
func (c *CourseController) CreateCourse(ctx *gin.Context) {
	var req service.CreateCourseInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.BindError(err))
		return
	}

	course, err := c.CourseService.CreateCourse(ctx.Request.Context(), util.CurrentUserID(ctx), req)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Created(ctx, course)
}

// CreateLesson godoc
// @Summary 添加课时
// @Tags 课程管理
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Param   body body service.CreateLessonInput true "课时信息"
// @Success 201 {object} util.Response{data=model.Lesson}
// @Router /api/courses/{id}/lessons [post]
func (c *CourseController) CreateLesson(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	var req service.CreateLessonInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.BindError(err))
		return
	}

	lesson, err := c.CourseService.CreateLesson(ctx.Request.Context(), id, req)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Created(ctx, lesson)
}

// UploadLessonVideo godoc
// @Summary 上传课时视频
// @Description 能解析出视频时长时覆盖表单中的 duration
// @Tags 课程管理
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param id path int true "课时ID"
// @Param file formData file true "视频文件"
// @Param duration formData int false "时长（秒）"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Router /api/courses/lessons/{id}/video [post]
func (c *CourseController) UploadLessonVideo(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	file, err := ctx.FormFile("file")
	if err != nil {
		util.Fail(ctx, util.NewValidationError("No file uploaded", util.FieldError{Field: "file", Message: "is required"}))
		return
	}
	duration, _ := strconv.Atoi(ctx.PostForm("duration"))

	lesson, err := c.CourseService.AttachLessonVideo(ctx.Request.Context(), id, file, duration)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}
