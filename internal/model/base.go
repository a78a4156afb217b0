package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// swagger:model
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func GenerateUUID() string {
	return uuid.New().String()
}

// AllModels 迁移时使用的模型列表，生产库与测试库共用
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Course{},
		&Lesson{},
		&UserProgress{},
		&Achievement{},
		&UserAchievement{},
		&WritingSubmission{},
		&Payment{},
		&PaymentEvent{},
	}
}
