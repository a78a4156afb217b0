package service

import (
	"context"
	"escrita_backend/internal/model"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/util"
	"escrita_backend/pkg/logger"
	"escrita_backend/pkg/monitoring"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AchievementNotifier 成就解锁后的通知出口，失败不影响业务
type AchievementNotifier interface {
	AchievementsUnlocked(user *model.User, achievements []model.Achievement)
}

type AchievementService struct {
	DB              *gorm.DB
	AchievementRepo *repository.AchievementRepository
	SubmissionRepo  *repository.SubmissionRepository
	ProgressRepo    *repository.ProgressRepository
	CourseRepo      *repository.CourseRepository
	UserRepo        *repository.UserRepository
	Notifier        AchievementNotifier
}

func NewAchievementService(
	db *gorm.DB,
	achievementRepo *repository.AchievementRepository,
	submissionRepo *repository.SubmissionRepository,
	progressRepo *repository.ProgressRepository,
	courseRepo *repository.CourseRepository,
	userRepo *repository.UserRepository,
	notifier AchievementNotifier,
) *AchievementService {
	return &AchievementService{
		DB:              db,
		AchievementRepo: achievementRepo,
		SubmissionRepo:  submissionRepo,
		ProgressRepo:    progressRepo,
		CourseRepo:      courseRepo,
		UserRepo:        userRepo,
		Notifier:        notifier,
	}
}

// EvaluateTx 在调用方的事务中评估事件对应的规则并授予成就。
// 返回本次新解锁的成就；任何错误都应使调用方回滚。
func (s *AchievementService) EvaluateTx(ctx context.Context, tx *gorm.DB, ev AchievementEvent) ([]model.Achievement, error) {
	repos := ruleRepos{
		submissions: s.SubmissionRepo.WithTx(tx),
		progress:    s.ProgressRepo.WithTx(tx),
		courses:     s.CourseRepo.WithTx(tx),
	}
	achievements := s.AchievementRepo.WithTx(tx)
	now := time.Now().UTC()

	var granted []model.Achievement
	for _, rule := range rulesByEvent[ev.Kind] {
		ok, err := evaluateRule(ctx, repos, rule, ev)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", rule.Code, err)
		}
		if !ok {
			continue
		}

		achievement, err := achievements.FindByCode(ctx, rule.Code)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, util.NewInternalError("achievement catalogue is missing "+rule.Code, err)
			}
			return nil, err
		}

		inserted, err := achievements.Grant(ctx, ev.UserID, achievement.ID, now)
		if err != nil {
			return nil, fmt.Errorf("grant %s: %w", rule.Code, err)
		}
		if inserted {
			granted = append(granted, *achievement)
		}
	}
	return granted, nil
}

// Announce 事务提交后调用：记录指标并通知用户，通知失败只记日志
func (s *AchievementService) Announce(ctx context.Context, userID uint, granted []model.Achievement) {
	if len(granted) == 0 {
		return
	}
	for _, a := range granted {
		monitoring.AchievementsGranted.WithLabelValues(a.Code).Inc()
		logger.Log.Info("Achievement unlocked", zap.Uint("user_id", userID), zap.String("code", a.Code))
	}

	if s.Notifier == nil {
		return
	}
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		logger.Log.Warn("Could not load user for achievement notification", zap.Uint("user_id", userID), zap.Error(err))
		return
	}
	s.Notifier.AchievementsUnlocked(user, granted)
}

// UserAchievement 用户已解锁的成就
type UserAchievement struct {
	ID          uint      `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Points      int       `json:"points"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

func toUserAchievements(grants []model.UserAchievement) []UserAchievement {
	out := make([]UserAchievement, 0, len(grants))
	for _, g := range grants {
		out = append(out, UserAchievement{
			ID:          g.Achievement.ID,
			Code:        g.Achievement.Code,
			Title:       g.Achievement.Title,
			Description: g.Achievement.Description,
			Points:      g.Achievement.Points,
			UnlockedAt:  g.UnlockedAt,
		})
	}
	return out
}

func (s *AchievementService) GetUserAchievements(ctx context.Context, userID uint) ([]UserAchievement, error) {
	grants, err := s.AchievementRepo.FindByUser(ctx, userID, 0)
	if err != nil {
		logger.Log.Error("Failed to load user achievements", zap.Uint("user_id", userID), zap.Error(err))
		return nil, util.NewInternalError("could not load achievements", err)
	}
	return toUserAchievements(grants), nil
}

const (
	defaultRecentAchievements = 5
	maxRecentAchievements     = 50
)

func (s *AchievementService) GetRecentAchievements(ctx context.Context, userID uint, limit int) ([]UserAchievement, error) {
	limit = util.ClampLimit(limit, defaultRecentAchievements, maxRecentAchievements)
	grants, err := s.AchievementRepo.FindByUser(ctx, userID, limit)
	if err != nil {
		logger.Log.Error("Failed to load recent achievements", zap.Uint("user_id", userID), zap.Error(err))
		return nil, util.NewInternalError("could not load achievements", err)
	}
	return toUserAchievements(grants), nil
}

// CatalogueEntry 成就目录项，附带当前用户的解锁状态
type CatalogueEntry struct {
	model.Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

func (s *AchievementService) ListAchievements(ctx context.Context, userID uint) ([]CatalogueEntry, error) {
	all, err := s.AchievementRepo.FindAll(ctx)
	if err != nil {
		return nil, util.NewInternalError("could not load achievements", err)
	}
	grants, err := s.AchievementRepo.FindByUser(ctx, userID, 0)
	if err != nil {
		return nil, util.NewInternalError("could not load achievements", err)
	}

	unlocked := make(map[uint]time.Time, len(grants))
	for _, g := range grants {
		unlocked[g.AchievementID] = g.UnlockedAt
	}

	entries := make([]CatalogueEntry, 0, len(all))
	for _, a := range all {
		entry := CatalogueEntry{Achievement: a}
		if at, ok := unlocked[a.ID]; ok {
			at := at
			entry.Unlocked = true
			entry.UnlockedAt = &at
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
