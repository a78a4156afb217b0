package repository

import (
	"context"
	"escrita_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubmissionRepository struct {
	BaseRepository[model.WritingSubmission]
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{BaseRepository[model.WritingSubmission]{DB: db}}
}

func (r *SubmissionRepository) WithTx(tx *gorm.DB) *SubmissionRepository {
	return NewSubmissionRepository(tx)
}

// FindForUpdate 在事务内加行锁读取，sqlite 下忽略锁
func (r *SubmissionRepository) FindForUpdate(ctx context.Context, id uint) (*model.WritingSubmission, error) {
	var sub model.WritingSubmission
	err := r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, id).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubmissionRepository) FindWithPeople(ctx context.Context, id uint) (*model.WritingSubmission, error) {
	var sub model.WritingSubmission
	err := r.conn(ctx).Preload("User").Preload("Reviewer").First(&sub, id).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubmissionRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&model.WritingSubmission{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *SubmissionRepository) CountScoresAtLeast(ctx context.Context, userID uint, min int) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&model.WritingSubmission{}).
		Where("user_id = ? AND score IS NOT NULL AND score >= ?", userID, min).
		Count(&count).Error
	return count, err
}

// SubmissionStats 聚合结果，平均分在服务层计算
type SubmissionStats struct {
	Total    int64
	Reviewed int64
	ScoreSum int64
	Highest  *int
}

func (r *SubmissionRepository) Stats(ctx context.Context, userID uint) (*SubmissionStats, error) {
	var stats SubmissionStats
	err := r.conn(ctx).Model(&model.WritingSubmission{}).
		Select("COUNT(*) AS total, COUNT(score) AS reviewed, COALESCE(SUM(score), 0) AS score_sum, MAX(score) AS highest").
		Where("user_id = ?", userID).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// SubmissionFilter 列表查询条件
type SubmissionFilter struct {
	Status string
	Limit  int
	Offset int
}

func (r *SubmissionRepository) ListByUser(ctx context.Context, userID uint, f SubmissionFilter) ([]model.WritingSubmission, int64, error) {
	q := r.conn(ctx).Model(&model.WritingSubmission{}).Where("user_id = ?", userID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var subs []model.WritingSubmission
	err := q.Preload("Reviewer").
		Order("created_at DESC, id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&subs).Error
	return subs, total, err
}

func (r *SubmissionRepository) ListPending(ctx context.Context, limit, offset int) ([]model.WritingSubmission, int64, error) {
	q := r.conn(ctx).Model(&model.WritingSubmission{}).Where("status = ?", model.SubmissionPending)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var subs []model.WritingSubmission
	err := q.Preload("User").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&subs).Error
	return subs, total, err
}

// SubmissionTimes 用户所有作文的提交时间
func (r *SubmissionRepository) SubmissionTimes(ctx context.Context, userID uint) ([]time.Time, error) {
	var times []time.Time
	err := r.conn(ctx).Model(&model.WritingSubmission{}).
		Where("user_id = ?", userID).
		Pluck("created_at", &times).Error
	return times, err
}
