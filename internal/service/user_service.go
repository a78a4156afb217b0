package service

import (
	"context"
	"escrita_backend/internal/model"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/util"
	"escrita_backend/pkg/logger"
	"mime/multipart"
	"strings"

	"go.uber.org/zap"
)

// UserService 个人资料与学习统计
type UserService struct {
	UserRepo        *repository.UserRepository
	ProgressRepo    *repository.ProgressRepository
	AchievementRepo *repository.AchievementRepository
	Submissions     *SubmissionService
	Storage         *StorageService
}

func NewUserService(
	userRepo *repository.UserRepository,
	progressRepo *repository.ProgressRepository,
	achievementRepo *repository.AchievementRepository,
	submissions *SubmissionService,
	storage *StorageService,
) *UserService {
	return &UserService{
		UserRepo:        userRepo,
		ProgressRepo:    progressRepo,
		AchievementRepo: achievementRepo,
		Submissions:     submissions,
		Storage:         storage,
	}
}

func (s *UserService) GetProfile(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, util.NewInternalError("could not load profile", err)
	}
	return user, nil
}

type UpdateProfileInput struct {
	Name *string `json:"name" binding:"omitempty,min=2,max=100"`
	Bio  *string `json:"bio" binding:"omitempty,max=1000"`
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in UpdateProfileInput) (*model.User, error) {
	fields := make(map[string]interface{})
	if in.Name != nil {
		fields["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Bio != nil {
		fields["bio"] = strings.TrimSpace(*in.Bio)
	}
	if len(fields) > 0 {
		if err := s.UserRepo.UpdateFields(ctx, userID, fields); err != nil {
			logger.Log.Error("Failed to update profile", zap.Uint("user_id", userID), zap.Error(err))
			return nil, util.NewInternalError("could not update profile", err)
		}
	}
	return s.GetProfile(ctx, userID)
}

// UploadAvatar 头像限 JPEG / PNG，最大 2MB
func (s *UserService) UploadAvatar(ctx context.Context, userID uint, file *multipart.FileHeader) (*model.User, error) {
	url, err := s.Storage.SaveUpload(ctx, file, util.AvatarUploadRule)
	if err != nil {
		return nil, err
	}
	if err := s.UserRepo.UpdateFields(ctx, userID, map[string]interface{}{"avatar_url": url}); err != nil {
		return nil, util.NewInternalError("could not update avatar", err)
	}
	return s.GetProfile(ctx, userID)
}

type UserStats struct {
	Submissions       *SubmissionStats `json:"submissions"`
	CompletedLessons  int64            `json:"completed_lessons"`
	AchievementsCount int64            `json:"achievements_count"`
	TotalPoints       int              `json:"total_points"`
}

func (s *UserService) GetStats(ctx context.Context, userID uint) (*UserStats, error) {
	subs, err := s.Submissions.GetSubmissionStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	lessons, err := s.ProgressRepo.CountCompleted(ctx, userID)
	if err != nil {
		return nil, util.NewInternalError("could not load statistics", err)
	}
	count, err := s.AchievementRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, util.NewInternalError("could not load statistics", err)
	}
	points, err := s.AchievementRepo.TotalPoints(ctx, userID)
	if err != nil {
		return nil, util.NewInternalError("could not load statistics", err)
	}
	return &UserStats{
		Submissions:       subs,
		CompletedLessons:  lessons,
		AchievementsCount: count,
		TotalPoints:       points,
	}, nil
}
