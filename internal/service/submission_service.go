package service

import (
	"context"
	"escrita_backend/internal/model"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/util"
	"escrita_backend/pkg/logger"
	"escrita_backend/pkg/monitoring"
	"escrita_backend/pkg/tracing"
	"mime/multipart"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MinScore = 0
	MaxScore = 1000
)

// SubmissionMailer 作文相关的邮件通知
type SubmissionMailer interface {
	SendSubmissionReceived(user *model.User, sub *model.WritingSubmission)
	SendCorrectionCompleted(user *model.User, sub *model.WritingSubmission)
}

type SubmissionService struct {
	DB             *gorm.DB
	SubmissionRepo *repository.SubmissionRepository
	UserRepo       *repository.UserRepository
	Achievements   *AchievementService
	Storage        *StorageService
	Mailer         SubmissionMailer
}

func NewSubmissionService(
	db *gorm.DB,
	submissionRepo *repository.SubmissionRepository,
	userRepo *repository.UserRepository,
	achievements *AchievementService,
	storage *StorageService,
	mailer SubmissionMailer,
) *SubmissionService {
	return &SubmissionService{
		DB:             db,
		SubmissionRepo: submissionRepo,
		UserRepo:       userRepo,
		Achievements:   achievements,
		Storage:        storage,
		Mailer:         mailer,
	}
}

// SubmissionView 作文及作者、批改人信息
type SubmissionView struct {
	model.WritingSubmission
	Author   *model.UserSummary `json:"user,omitempty"`
	Reviewer *model.UserSummary `json:"reviewer"`
}

func newSubmissionView(sub *model.WritingSubmission) SubmissionView {
	view := SubmissionView{WritingSubmission: *sub}
	if sub.User.ID != 0 {
		view.Author = sub.User.Summary()
	}
	view.Reviewer = sub.Reviewer.Summary()
	return view
}

type SubmitInput struct {
	UserID  uint
	Title   string
	Content string
	FileURL *string
}

// SubmissionResult 新建或批改后的作文以及新解锁的成就
type SubmissionResult struct {
	Submission      *model.WritingSubmission `json:"submission"`
	NewAchievements []model.Achievement      `json:"new_achievements"`
}

func (s *SubmissionService) SubmitWriting(ctx context.Context, in SubmitInput) (*SubmissionResult, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)

	var fields []util.FieldError
	if in.UserID == 0 {
		fields = append(fields, util.FieldError{Field: "user_id", Message: "is required"})
	}
	if title == "" {
		fields = append(fields, util.FieldError{Field: "title", Message: "is required"})
	}
	if content == "" {
		fields = append(fields, util.FieldError{Field: "content", Message: "is required"})
	}
	if len(fields) > 0 {
		return nil, util.NewValidationError("Validation failed", fields...)
	}

	sub := &model.WritingSubmission{
		UserID:  in.UserID,
		Title:   title,
		Content: content,
		FileURL: in.FileURL,
		Status:  model.SubmissionPending,
	}

	var granted []model.Achievement
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.SubmissionRepo.WithTx(tx).Create(ctx, sub); err != nil {
			return err
		}
		var err error
		granted, err = s.Achievements.EvaluateTx(ctx, tx, AchievementEvent{Kind: EventSubmitted, UserID: in.UserID})
		return err
	})
	if err != nil {
		return nil, s.internal("could not submit writing", err, zap.Uint("user_id", in.UserID))
	}

	s.Achievements.Announce(ctx, in.UserID, granted)
	s.notify(ctx, sub.UserID, func(u *model.User) { s.Mailer.SendSubmissionReceived(u, sub) })

	return &SubmissionResult{Submission: sub, NewAchievements: nonNil(granted)}, nil
}

type ReviewInput struct {
	ReviewerID uint
	Feedback   string
	Score      int
}

// ReviewSubmission 批改只能进行一次，已批改的作文返回 Conflict
func (s *SubmissionService) ReviewSubmission(ctx context.Context, submissionID uint, in ReviewInput) (result *SubmissionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "SubmissionService.ReviewSubmission",
		attribute.Int64("submission.id", int64(submissionID)),
		attribute.Int("review.score", in.Score),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if submissionID == 0 || in.ReviewerID == 0 {
		return nil, util.NewValidationError("Submission ID and reviewer are required")
	}
	if in.Score < MinScore || in.Score > MaxScore {
		return nil, util.NewValidationError("Validation failed", util.FieldError{Field: "score", Message: "must be between 0 and 1000"})
	}
	if strings.TrimSpace(in.Feedback) == "" {
		return nil, util.NewValidationError("Validation failed", util.FieldError{Field: "feedback", Message: "is required"})
	}

	var (
		sub     *model.WritingSubmission
		granted []model.Achievement
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.SubmissionRepo.WithTx(tx)

		var err error
		sub, err = repo.FindForUpdate(ctx, submissionID)
		if err != nil {
			if repository.IsNotFound(err) {
				return util.NotFoundf("Submission %d not found", submissionID)
			}
			return err
		}
		if !sub.IsPending() {
			return util.NewConflictError("Submission has already been reviewed")
		}

		score := in.Score
		reviewerID := in.ReviewerID
		sub.ReviewerID = &reviewerID
		sub.Feedback = in.Feedback
		sub.Score = &score
		sub.Status = model.SubmissionCompleted
		sub.UpdatedAt = time.Now()
		if err := repo.Save(ctx, sub); err != nil {
			return err
		}

		granted, err = s.Achievements.EvaluateTx(ctx, tx, AchievementEvent{
			Kind:   EventReviewed,
			UserID: sub.UserID,
			Score:  in.Score,
		})
		return err
	})
	if err != nil {
		if appErr, ok := util.AsAppError(err); ok && appErr.Kind != util.KindInternal {
			return nil, err
		}
		return nil, s.internal("could not review submission", err, zap.Uint("submission_id", submissionID))
	}

	monitoring.SubmissionsReviewed.Inc()
	s.Achievements.Announce(ctx, sub.UserID, granted)
	s.notify(ctx, sub.UserID, func(u *model.User) { s.Mailer.SendCorrectionCompleted(u, sub) })

	return &SubmissionResult{Submission: sub, NewAchievements: nonNil(granted)}, nil
}

type SubmissionStats struct {
	TotalSubmissions    int64    `json:"total_submissions"`
	ReviewedSubmissions int64    `json:"reviewed_submissions"`
	AverageScore        *float64 `json:"average_score"`
	HighestScore        *int     `json:"highest_score"`
}

func (s *SubmissionService) GetSubmissionStats(ctx context.Context, userID uint) (*SubmissionStats, error) {
	raw, err := s.SubmissionRepo.Stats(ctx, userID)
	if err != nil {
		return nil, s.internal("could not load statistics", err, zap.Uint("user_id", userID))
	}

	stats := &SubmissionStats{
		TotalSubmissions:    raw.Total,
		ReviewedSubmissions: raw.Reviewed,
		HighestScore:        raw.Highest,
	}
	if raw.Reviewed > 0 {
		avg := util.RoundTo(float64(raw.ScoreSum)/float64(raw.Reviewed), 1)
		stats.AverageScore = &avg
	}
	return stats, nil
}

type ListSubmissionsInput struct {
	Status string
	Limit  int
	Offset int
}

func (s *SubmissionService) ListUserSubmissions(ctx context.Context, userID uint, in ListSubmissionsInput) (*util.PageResponse, error) {
	if in.Status != "" && in.Status != string(model.SubmissionPending) && in.Status != string(model.SubmissionCompleted) {
		return nil, util.NewValidationError("Validation failed", util.FieldError{Field: "status", Message: "must be one of pending completed"})
	}
	limit := util.ClampLimit(in.Limit, util.DefaultPageLimit, util.MaxPageLimit)
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}

	subs, total, err := s.SubmissionRepo.ListByUser(ctx, userID, repository.SubmissionFilter{
		Status: in.Status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, s.internal("could not list submissions", err, zap.Uint("user_id", userID))
	}

	views := make([]SubmissionView, 0, len(subs))
	for i := range subs {
		views = append(views, newSubmissionView(&subs[i]))
	}
	return &util.PageResponse{List: views, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *SubmissionService) ListPending(ctx context.Context, limit, offset int) (*util.PageResponse, error) {
	limit = util.ClampLimit(limit, util.DefaultPageLimit, util.MaxPageLimit)
	if offset < 0 {
		offset = 0
	}
	subs, total, err := s.SubmissionRepo.ListPending(ctx, limit, offset)
	if err != nil {
		return nil, s.internal("could not list submissions", err)
	}

	views := make([]SubmissionView, 0, len(subs))
	for i := range subs {
		views = append(views, newSubmissionView(&subs[i]))
	}
	return &util.PageResponse{List: views, Total: total, Limit: limit, Offset: offset}, nil
}

// GetSubmission 作者本人或讲师、管理员可见，其他人视为不存在
func (s *SubmissionService) GetSubmission(ctx context.Context, submissionID, viewerID uint) (*SubmissionView, error) {
	sub, err := s.SubmissionRepo.FindWithPeople(ctx, submissionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NotFoundf("Submission %d not found", submissionID)
		}
		return nil, s.internal("could not load submission", err, zap.Uint("submission_id", submissionID))
	}

	if sub.UserID != viewerID {
		viewer, err := s.UserRepo.FindByID(ctx, viewerID)
		if err != nil || !viewer.IsStaff() {
			return nil, util.NotFoundf("Submission %d not found", submissionID)
		}
	}

	view := newSubmissionView(sub)
	return &view, nil
}

type Feedback struct {
	SubmissionID uint               `json:"submission_id"`
	Score        *int               `json:"score"`
	Feedback     string             `json:"feedback"`
	Reviewer     *model.UserSummary `json:"reviewer"`
	ReviewedAt   time.Time          `json:"reviewed_at"`
}

func (s *SubmissionService) GetFeedback(ctx context.Context, submissionID, viewerID uint) (*Feedback, error) {
	view, err := s.GetSubmission(ctx, submissionID, viewerID)
	if err != nil {
		return nil, err
	}
	if view.Status != model.SubmissionCompleted {
		return nil, util.NewNotFoundError("Feedback not found")
	}
	return &Feedback{
		SubmissionID: view.ID,
		Score:        view.Score,
		Feedback:     view.Feedback,
		Reviewer:     view.Reviewer,
		ReviewedAt:   view.UpdatedAt,
	}, nil
}

type UpdateSubmissionInput struct {
	Title   *string `json:"title" binding:"omitempty,min=3,max=255"`
	Content *string `json:"content" binding:"omitempty,min=1"`
	FileURL *string `json:"file_url" binding:"omitempty,url"`
}

// ownedPending 读取属于 userID 且仍待批改的作文
func (s *SubmissionService) ownedPending(ctx context.Context, repo *repository.SubmissionRepository, submissionID, userID uint, action string) (*model.WritingSubmission, error) {
	sub, err := repo.FindForUpdate(ctx, submissionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NotFoundf("Submission %d not found", submissionID)
		}
		return nil, err
	}
	if sub.UserID != userID {
		return nil, util.NotFoundf("Submission %d not found", submissionID)
	}
	if !sub.IsPending() {
		return nil, util.NewConflictError("Cannot " + action + " reviewed submission")
	}
	return sub, nil
}

func (s *SubmissionService) UpdateSubmission(ctx context.Context, submissionID, userID uint, in UpdateSubmissionInput) (*model.WritingSubmission, error) {
	var sub *model.WritingSubmission
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.SubmissionRepo.WithTx(tx)
		var err error
		sub, err = s.ownedPending(ctx, repo, submissionID, userID, "update")
		if err != nil {
			return err
		}
		if in.Title != nil {
			sub.Title = strings.TrimSpace(*in.Title)
		}
		if in.Content != nil {
			sub.Content = strings.TrimSpace(*in.Content)
		}
		if in.FileURL != nil {
			sub.FileURL = in.FileURL
		}
		return repo.Save(ctx, sub)
	})
	if err != nil {
		if appErr, ok := util.AsAppError(err); ok && appErr.Kind != util.KindInternal {
			return nil, err
		}
		return nil, s.internal("could not update submission", err, zap.Uint("submission_id", submissionID))
	}
	return sub, nil
}

func (s *SubmissionService) DeleteSubmission(ctx context.Context, submissionID, userID uint) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.SubmissionRepo.WithTx(tx)
		if _, err := s.ownedPending(ctx, repo, submissionID, userID, "delete"); err != nil {
			return err
		}
		return repo.Delete(ctx, submissionID)
	})
	if err != nil {
		if appErr, ok := util.AsAppError(err); ok && appErr.Kind != util.KindInternal {
			return err
		}
		return s.internal("could not delete submission", err, zap.Uint("submission_id", submissionID))
	}
	return nil
}

// UploadSubmissionFile 保存作文附件（PDF / Word，最大 5MB）
func (s *SubmissionService) UploadSubmissionFile(ctx context.Context, file *multipart.FileHeader) (string, error) {
	return s.Storage.SaveUpload(ctx, file, util.WritingUploadRule)
}

// notify 提交后异步发信前加载作者信息，失败只记录日志
func (s *SubmissionService) notify(ctx context.Context, userID uint, send func(*model.User)) {
	if s.Mailer == nil {
		return
	}
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		logger.Log.Warn("Could not load user for email", zap.Uint("user_id", userID), zap.Error(err))
		return
	}
	send(user)
}

func (s *SubmissionService) internal(msg string, err error, fields ...zap.Field) error {
	if appErr, ok := util.AsAppError(err); ok && appErr.Kind == util.KindInternal {
		logger.Log.Error(msg, append(fields, zap.Error(err))...)
		return appErr
	}
	logger.Log.Error(msg, append(fields, zap.Error(err))...)
	return util.NewInternalError(msg, err)
}

func nonNil(a []model.Achievement) []model.Achievement {
	if a == nil {
		return []model.Achievement{}
	}
	return a
}
