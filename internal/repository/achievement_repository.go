package repository

import (
	"context"
	"escrita_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AchievementRepository struct {
	DB *gorm.DB
}

func NewAchievementRepository(db *gorm.DB) *AchievementRepository {
	return &AchievementRepository{DB: db}
}

func (r *AchievementRepository) WithTx(tx *gorm.DB) *AchievementRepository {
	return NewAchievementRepository(tx)
}

func (r *AchievementRepository) FindByCode(ctx context.Context, code string) (*model.Achievement, error) {
	var achievement model.Achievement
	if err := r.DB.WithContext(ctx).Where("code = ?", code).First(&achievement).Error; err != nil {
		return nil, err
	}
	return &achievement, nil
}

func (r *AchievementRepository) FindAll(ctx context.Context) ([]model.Achievement, error) {
	var achievements []model.Achievement
	err := r.DB.WithContext(ctx).Order("id ASC").Find(&achievements).Error
	return achievements, err
}

// Grant 已解锁时不做任何事，返回是否新插入了一行
func (r *AchievementRepository) Grant(ctx context.Context, userID, achievementID uint, at time.Time) (bool, error) {
	grant := model.UserAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		UnlockedAt:    at,
	}
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
		DoNothing: true,
	}).Create(&grant)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindByUser 按解锁时间倒序，limit <= 0 表示不限
func (r *AchievementRepository) FindByUser(ctx context.Context, userID uint, limit int) ([]model.UserAchievement, error) {
	var grants []model.UserAchievement
	q := r.DB.WithContext(ctx).
		Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&grants).Error
	return grants, err
}

func (r *AchievementRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.UserAchievement{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *AchievementRepository) TotalPoints(ctx context.Context, userID uint) (int, error) {
	var total int
	err := r.DB.WithContext(ctx).Model(&model.UserAchievement{}).
		Select("COALESCE(SUM(achievements.points), 0)").
		Joins("JOIN achievements ON achievements.id = user_achievements.achievement_id").
		Where("user_achievements.user_id = ?", userID).
		Scan(&total).Error
	return total, err
}
