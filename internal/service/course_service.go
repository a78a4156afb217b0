package service

import (
	"context"
	"escrita_backend/internal/model"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/util"
	"escrita_backend/pkg/logger"
	"escrita_backend/pkg/tracing"
	"io"
	"math"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recentCoursesLimit = 5

type CourseService struct {
	DB           *gorm.DB
	CourseRepo   *repository.CourseRepository
	ProgressRepo *repository.ProgressRepository
	Achievements *AchievementService
	Storage      *StorageService
	// ProbeVideo 读取视频元数据，测试中可替换
	ProbeVideo func(path string) (*util.VideoInfo, error)
}

func NewCourseService(
	db *gorm.DB,
	courseRepo *repository.CourseRepository,
	progressRepo *repository.ProgressRepository,
	achievements *AchievementService,
	storage *StorageService,
) *CourseService {
	return &CourseService{
		DB:           db,
		CourseRepo:   courseRepo,
		ProgressRepo: progressRepo,
		Achievements: achievements,
		Storage:      storage,
		ProbeVideo:   util.GetVideoInfo,
	}
}

type CourseProgress struct {
	TotalLessons     int  `json:"total_lessons"`
	CompletedLessons int  `json:"completed_lessons"`
	Percentage       int  `json:"percentage"`
	CourseCompleted  bool `json:"course_completed"`
}

func newCourseProgress(completed, total int) CourseProgress {
	return CourseProgress{
		TotalLessons:     total,
		CompletedLessons: completed,
		Percentage:       util.CalculateCourseProgress(completed, total),
		CourseCompleted:  total > 0 && completed >= total,
	}
}

type LessonView struct {
	model.Lesson
	Completed bool `json:"completed"`
}

// CourseModule 按 module_id 分组的课时，ID 为空表示未分组
type CourseModule struct {
	ID      *uint        `json:"id"`
	Lessons []LessonView `json:"lessons"`
}

type CourseSummary struct {
	model.Course
	Instructor *model.UserSummary `json:"instructor"`
	Progress   CourseProgress     `json:"progress"`
}

type CourseDetail struct {
	CourseSummary
	Lessons []LessonView   `json:"lessons"`
	Modules []CourseModule `json:"modules"`
}

// GroupLessonsByModule 按首次出现顺序分组，课时顺序保持不变
func GroupLessonsByModule(lessons []LessonView) []CourseModule {
	modules := make([]CourseModule, 0)
	index := make(map[uint]int)
	ungrouped := -1

	for _, lesson := range lessons {
		if lesson.ModuleID == nil {
			if ungrouped < 0 {
				ungrouped = len(modules)
				modules = append(modules, CourseModule{})
			}
			modules[ungrouped].Lessons = append(modules[ungrouped].Lessons, lesson)
			continue
		}

		i, ok := index[*lesson.ModuleID]
		if !ok {
			id := *lesson.ModuleID
			i = len(modules)
			index[id] = i
			modules = append(modules, CourseModule{ID: &id})
		}
		modules[i].Lessons = append(modules[i].Lessons, lesson)
	}
	return modules
}

func (s *CourseService) GetCourse(ctx context.Context, courseID, userID uint) (*CourseDetail, error) {
	if courseID == 0 || userID == 0 {
		return nil, util.NewValidationError("Course ID and User ID are required")
	}

	course, err := s.CourseRepo.FindWithLessons(ctx, courseID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NotFoundf("Course %d not found", courseID)
		}
		logger.Log.Error("Failed to load course", zap.Uint("course_id", courseID), zap.Error(err))
		return nil, util.NewInternalError("could not load course", err)
	}

	done, err := s.ProgressRepo.CompletedLessonIDs(ctx, userID, courseID)
	if err != nil {
		logger.Log.Error("Failed to load course progress", zap.Uint("course_id", courseID), zap.Error(err))
		return nil, util.NewInternalError("could not load course", err)
	}

	lessons := make([]LessonView, 0, len(course.Lessons))
	for _, l := range course.Lessons {
		lessons = append(lessons, LessonView{Lesson: l, Completed: done[l.ID]})
	}

	return &CourseDetail{
		CourseSummary: CourseSummary{
			Course:     *course,
			Instructor: course.Instructor.Summary(),
			Progress:   newCourseProgress(len(done), len(course.Lessons)),
		},
		Lessons: lessons,
		Modules: GroupLessonsByModule(lessons),
	}, nil
}

func (s *CourseService) summaries(ctx context.Context, userID uint, courses []model.Course) ([]CourseSummary, error) {
	totals, err := s.CourseRepo.LessonCounts(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := s.ProgressRepo.CompletedCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]CourseSummary, 0, len(courses))
	for _, c := range courses {
		out = append(out, CourseSummary{
			Course:     c,
			Instructor: c.Instructor.Summary(),
			Progress:   newCourseProgress(completed[c.ID], totals[c.ID]),
		})
	}
	return out, nil
}

func (s *CourseService) GetAllCourses(ctx context.Context, userID uint) ([]CourseSummary, error) {
	courses, err := s.CourseRepo.FindAll(ctx)
	if err != nil {
		logger.Log.Error("Failed to list courses", zap.Error(err))
		return nil, util.NewInternalError("could not load courses", err)
	}
	out, err := s.summaries(ctx, userID, courses)
	if err != nil {
		logger.Log.Error("Failed to summarise courses", zap.Error(err))
		return nil, util.NewInternalError("could not load courses", err)
	}
	return out, nil
}

// GetRecentCourses 最近学习过的课程，按最后学习时间倒序
func (s *CourseService) GetRecentCourses(ctx context.Context, userID uint) ([]CourseSummary, error) {
	ids, err := s.ProgressRepo.RecentCourseIDs(ctx, userID, recentCoursesLimit)
	if err != nil {
		logger.Log.Error("Failed to load recent courses", zap.Uint("user_id", userID), zap.Error(err))
		return nil, util.NewInternalError("could not load courses", err)
	}
	courses, err := s.CourseRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, util.NewInternalError("could not load courses", err)
	}

	byID := make(map[uint]model.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}
	ordered := make([]model.Course, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}

	out, err := s.summaries(ctx, userID, ordered)
	if err != nil {
		return nil, util.NewInternalError("could not load courses", err)
	}
	return out, nil
}

func (s *CourseService) GetCourseProgress(ctx context.Context, courseID, userID uint) (*CourseProgress, error) {
	if _, err := s.CourseRepo.FindByID(ctx, courseID); err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NotFoundf("Course %d not found", courseID)
		}
		return nil, util.NewInternalError("could not load course", err)
	}
	total, err := s.CourseRepo.CountLessons(ctx, courseID)
	if err != nil {
		return nil, util.NewInternalError("could not load progress", err)
	}
	completed, err := s.ProgressRepo.CountCompletedInCourse(ctx, userID, courseID)
	if err != nil {
		return nil, util.NewInternalError("could not load progress", err)
	}
	progress := newCourseProgress(completed, total)
	return &progress, nil
}

// LessonCompletion 完成课时后的课程进度和新成就
type LessonCompletion struct {
	LessonID        uint                `json:"lesson_id"`
	CourseID        uint                `json:"course_id"`
	Progress        CourseProgress      `json:"progress"`
	NewAchievements []model.Achievement `json:"new_achievements"`
}

// MarkLessonComplete 幂等地记录课时完成，并在同一事务中评估成就
func (s *CourseService) MarkLessonComplete(ctx context.Context, lessonID, userID uint) (result *LessonCompletion, err error) {
	ctx, span := tracing.StartSpan(ctx, "CourseService.MarkLessonComplete",
		attribute.Int64("lesson.id", int64(lessonID)),
		attribute.Int64("user.id", int64(userID)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if lessonID == 0 || userID == 0 {
		return nil, util.NewValidationError("Lesson ID and User ID are required")
	}

	lesson, err := s.CourseRepo.FindLessonByID(ctx, lessonID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NotFoundf("Lesson %d not found", lessonID)
		}
		return nil, util.NewInternalError("could not load lesson", err)
	}

	var (
		granted  []model.Achievement
		progress CourseProgress
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ProgressRepo.WithTx(tx).MarkComplete(ctx, userID, lessonID, time.Now().UTC()); err != nil {
			return err
		}

		var err error
		granted, err = s.Achievements.EvaluateTx(ctx, tx, AchievementEvent{
			Kind:     EventLessonCompleted,
			UserID:   userID,
			LessonID: lessonID,
			CourseID: lesson.CourseID,
		})
		if err != nil {
			return err
		}

		total, err := s.CourseRepo.WithTx(tx).CountLessons(ctx, lesson.CourseID)
		if err != nil {
			return err
		}
		completed, err := s.ProgressRepo.WithTx(tx).CountCompletedInCourse(ctx, userID, lesson.CourseID)
		if err != nil {
			return err
		}
		progress = newCourseProgress(completed, total)
		return nil
	})
	if err != nil {
		logger.Log.Error("Failed to mark lesson complete",
			zap.Uint("lesson_id", lessonID),
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		if _, ok := util.AsAppError(err); ok {
			return nil, err
		}
		return nil, util.NewInternalError("could not update progress", err)
	}

	s.Achievements.Announce(ctx, userID, granted)

	if granted == nil {
		granted = []model.Achievement{}
	}
	return &LessonCompletion{
		LessonID:        lessonID,
		CourseID:        lesson.CourseID,
		Progress:        progress,
		NewAchievements: granted,
	}, nil
}

type CreateCourseInput struct {
	Title        string            `json:"title" binding:"required,min=3,max=255"`
	Description  string            `json:"description" binding:"required"`
	Category     string            `json:"category" binding:"required,max=100"`
	Level        model.CourseLevel `json:"level" binding:"required,oneof=Beginner Intermediate Advanced"`
	ThumbnailURL string            `json:"thumbnail_url" binding:"omitempty,url"`
	TotalHours   float64           `json:"total_hours" binding:"omitempty,min=0"`
}

func (s *CourseService) CreateCourse(ctx context.Context, instructorID uint, in CreateCourseInput) (*model.Course, error) {
	course := &model.Course{
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		Level:        in.Level,
		ThumbnailURL: in.ThumbnailURL,
		TotalHours:   in.TotalHours,
		InstructorID: instructorID,
	}
	if err := s.CourseRepo.Create(ctx, course); err != nil {
		logger.Log.Error("Failed to create course", zap.Error(err))
		return nil, util.NewInternalError("could not create course", err)
	}
	return course, nil
}

type CreateLessonInput struct {
	Title       string `json:"title" binding:"required,min=3,max=255"`
	Description string `json:"description"`
	VideoURL    string `json:"video_url" binding:"omitempty,url"`
	Duration    int    `json:"duration" binding:"omitempty,min=0"`
	OrderIndex  int    `json:"order_index" binding:"min=0"`
	ModuleID    *uint  `json:"module_id"`
}

func (s *CourseService) CreateLesson(ctx context.Context, courseID uint, in CreateLessonInput) (*model.Lesson, error) {
	if _, err := s.CourseRepo.FindByID(ctx, courseID); err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NotFoundf("Course %d not found", courseID)
		}
		return nil, util.NewInternalError("could not load course", err)
	}

	lesson := &model.Lesson{
		CourseID:    courseID,
		ModuleID:    in.ModuleID,
		Title:       in.Title,
		Description: in.Description,
		VideoURL:    in.VideoURL,
		Duration:    in.Duration,
		OrderIndex:  in.OrderIndex,
	}
	if err := s.CourseRepo.CreateLesson(ctx, lesson); err != nil {
		logger.Log.Error("Failed to create lesson", zap.Uint("course_id", courseID), zap.Error(err))
		return nil, util.NewInternalError("could not create lesson", err)
	}
	return lesson, nil
}

// AttachLessonVideo 保存课时视频；能读到时长时覆盖传入的 duration
func (s *CourseService) AttachLessonVideo(ctx context.Context, lessonID uint, file *multipart.FileHeader, duration int) (*model.Lesson, error) {
	lesson, err := s.CourseRepo.FindLessonByID(ctx, lessonID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NotFoundf("Lesson %d not found", lessonID)
		}
		return nil, util.NewInternalError("could not load lesson", err)
	}
	if err := util.ValidateUpload(file, util.LessonVideoUploadRule); err != nil {
		return nil, err
	}

	tmpPath, err := saveTemp(file)
	if err != nil {
		return nil, util.NewInternalError("could not read upload", err)
	}
	defer os.Remove(tmpPath)

	if info, err := s.ProbeVideo(tmpPath); err != nil {
		logger.Log.Warn("Video probe failed, keeping submitted duration", zap.Uint("lesson_id", lessonID), zap.Error(err))
	} else if info.Duration > 0 {
		duration = int(math.Round(info.Duration))
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = util.MimeOctetStream
	}
	url, err := s.Storage.UploadFile(ctx, ObjectName(util.LessonVideoUploadRule.Dir, file.Filename), tmpPath, contentType)
	if err != nil {
		logger.Log.Error("Failed to store lesson video", zap.Uint("lesson_id", lessonID), zap.Error(err))
		return nil, util.NewInternalError("could not store video", err)
	}

	if err := s.CourseRepo.UpdateLessonVideo(ctx, lessonID, url, duration); err != nil {
		return nil, util.NewInternalError("could not update lesson", err)
	}
	lesson.VideoURL = url
	lesson.Duration = duration
	return lesson, nil
}

func saveTemp(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "lesson-*"+filepath.Ext(file.Filename))
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
