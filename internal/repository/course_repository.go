package repository

import (
	"context"
	"escrita_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	BaseRepository[model.Course]
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{BaseRepository[model.Course]{DB: db}}
}

func (r *CourseRepository) WithTx(tx *gorm.DB) *CourseRepository {
	return NewCourseRepository(tx)
}

// FindWithLessons 课程、讲师和按 order_index 排序的课时
func (r *CourseRepository) FindWithLessons(ctx context.Context, courseID uint) (*model.Course, error) {
	var course model.Course
	err := r.conn(ctx).
		Preload("Instructor").
		Preload("Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC, id ASC")
		}).
		First(&course, courseID).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) FindAll(ctx context.Context) ([]model.Course, error) {
	var courses []model.Course
	err := r.conn(ctx).Preload("Instructor").Order("id ASC").Find(&courses).Error
	return courses, err
}

func (r *CourseRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Course, error) {
	var courses []model.Course
	if len(ids) == 0 {
		return courses, nil
	}
	err := r.conn(ctx).Preload("Instructor").Where("id IN ?", ids).Find(&courses).Error
	return courses, err
}

func (r *CourseRepository) FindLessonByID(ctx context.Context, lessonID uint) (*model.Lesson, error) {
	var lesson model.Lesson
	if err := r.conn(ctx).First(&lesson, lessonID).Error; err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *CourseRepository) CreateLesson(ctx context.Context, lesson *model.Lesson) error {
	return r.conn(ctx).Create(lesson).Error
}

func (r *CourseRepository) UpdateLessonVideo(ctx context.Context, lessonID uint, videoURL string, duration int) error {
	return r.conn(ctx).Model(&model.Lesson{}).Where("id = ?", lessonID).Updates(map[string]interface{}{
		"video_url": videoURL,
		"duration":  duration,
	}).Error
}

func (r *CourseRepository) CountLessons(ctx context.Context, courseID uint) (int, error) {
	var count int64
	err := r.conn(ctx).Model(&model.Lesson{}).Where("course_id = ?", courseID).Count(&count).Error
	return int(count), err
}

// LessonCounts 每门课程的课时数
func (r *CourseRepository) LessonCounts(ctx context.Context) (map[uint]int, error) {
	var rows []struct {
		CourseID uint
		Total    int
	}
	err := r.conn(ctx).Model(&model.Lesson{}).
		Select("course_id, COUNT(*) AS total").
		Group("course_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int, len(rows))
	for _, row := range rows {
		counts[row.CourseID] = row.Total
	}
	return counts, nil
}
