package repository

import (
	"context"
	"escrita_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return NewProgressRepository(tx)
}

// MarkComplete 按 (user_id, lesson_id) 插入或更新，重复调用只保留一行
func (r *ProgressRepository) MarkComplete(ctx context.Context, userID, lessonID uint, at time.Time) error {
	progress := model.UserProgress{
		UserID:      userID,
		LessonID:    lessonID,
		Completed:   true,
		CompletedAt: &at,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed", "completed_at", "updated_at"}),
	}).Create(&progress).Error
}

func (r *ProgressRepository) Find(ctx context.Context, userID, lessonID uint) (*model.UserProgress, error) {
	var progress model.UserProgress
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// CompletedLessonIDs 用户在某门课程中已完成的课时
func (r *ProgressRepository) CompletedLessonIDs(ctx context.Context, userID, courseID uint) (map[uint]bool, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&model.UserProgress{}).
		Joins("JOIN lessons ON lessons.id = user_progress.lesson_id").
		Where("user_progress.user_id = ? AND lessons.course_id = ? AND user_progress.completed = ?", userID, courseID, true).
		Where("lessons.deleted_at IS NULL").
		Pluck("user_progress.lesson_id", &ids).Error
	if err != nil {
		return nil, err
	}
	done := make(map[uint]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

func (r *ProgressRepository) CountCompletedInCourse(ctx context.Context, userID, courseID uint) (int, error) {
	done, err := r.CompletedLessonIDs(ctx, userID, courseID)
	if err != nil {
		return 0, err
	}
	return len(done), nil
}

// CompletedCounts 用户在每门课程中已完成的课时数
func (r *ProgressRepository) CompletedCounts(ctx context.Context, userID uint) (map[uint]int, error) {
	var rows []struct {
		CourseID  uint
		Completed int
	}
	err := r.DB.WithContext(ctx).Model(&model.UserProgress{}).
		Select("lessons.course_id AS course_id, COUNT(*) AS completed").
		Joins("JOIN lessons ON lessons.id = user_progress.lesson_id").
		Where("user_progress.user_id = ? AND user_progress.completed = ?", userID, true).
		Where("lessons.deleted_at IS NULL").
		Group("lessons.course_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int, len(rows))
	for _, row := range rows {
		counts[row.CourseID] = row.Completed
	}
	return counts, nil
}

// RecentCourseIDs 按最近学习时间倒序的课程 ID
func (r *ProgressRepository) RecentCourseIDs(ctx context.Context, userID uint, limit int) ([]uint, error) {
	var rows []struct {
		CourseID uint
	}
	err := r.DB.WithContext(ctx).Model(&model.UserProgress{}).
		Select("lessons.course_id AS course_id, MAX(user_progress.updated_at) AS last_activity").
		Joins("JOIN lessons ON lessons.id = user_progress.lesson_id").
		Where("user_progress.user_id = ?", userID).
		Where("lessons.deleted_at IS NULL").
		Group("lessons.course_id").
		Order("last_activity DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.CourseID)
	}
	return ids, nil
}

// CompletionTimes 用户所有课时的完成时间
func (r *ProgressRepository) CompletionTimes(ctx context.Context, userID uint) ([]time.Time, error) {
	var rows []model.UserProgress
	err := r.DB.WithContext(ctx).
		Select("completed_at").
		Where("user_id = ? AND completed = ? AND completed_at IS NOT NULL", userID, true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		if row.CompletedAt != nil {
			times = append(times, *row.CompletedAt)
		}
	}
	return times, nil
}

func (r *ProgressRepository) CountCompleted(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.UserProgress{}).
		Where("user_id = ? AND completed = ?", userID, true).
		Count(&count).Error
	return count, err
}
