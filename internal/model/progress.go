package model

import "time"

// UserProgress 每个用户每节课一行，首次完成时创建
type UserProgress struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint       `gorm:"uniqueIndex:idx_user_lesson;not null" json:"user_id"`
	LessonID    uint       `gorm:"uniqueIndex:idx_user_lesson;not null" json:"lesson_id"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `gorm:"index" json:"updated_at"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}
