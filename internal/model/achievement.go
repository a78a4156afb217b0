package model

import "time"

// Achievement 成就目录，Code 对应评估规则
type Achievement struct {
	BaseModel
	Code        string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Title       string `gorm:"size:100;not null" json:"title"`
	Description string `gorm:"size:255" json:"description"`
	Points      int    `gorm:"default:0" json:"points"`
	// 历史字段，不表示任何用户的解锁状态
	Achieved bool `gorm:"default:false" json:"-"`
}

func (Achievement) TableName() string {
	return "achievements"
}

type UserAchievement struct {
	ID            uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint        `gorm:"uniqueIndex:idx_user_achievement;not null" json:"user_id"`
	AchievementID uint        `gorm:"uniqueIndex:idx_user_achievement;not null" json:"achievement_id"`
	UnlockedAt    time.Time   `gorm:"index" json:"unlocked_at"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"-"`
}

func (UserAchievement) TableName() string {
	return "user_achievements"
}
