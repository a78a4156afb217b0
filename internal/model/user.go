package model

import (
	"time"
)

type UserRole string

const (
	Student    UserRole = "student"
	Instructor UserRole = "instructor"
	Admin      UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name          string     `gorm:"size:100;not null" json:"name"`
	Email         string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password      string     `gorm:"size:100;not null" json:"-"`
	AvatarURL     string     `gorm:"size:255" json:"avatar_url"`
	Bio           string     `gorm:"type:text" json:"bio"`
	Role          UserRole   `gorm:"size:20;default:'student'" json:"role"`
	Plan          string     `gorm:"size:20" json:"plan,omitempty"`
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// IsStaff 讲师和管理员可以批改作文、维护课程
func (u *User) IsStaff() bool {
	return u.Role == Instructor || u.Role == Admin
}

// UserSummary 嵌入在课程、作文响应中的精简用户信息
type UserSummary struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func (u *User) Summary() *UserSummary {
	if u == nil || u.ID == 0 {
		return nil
	}
	return &UserSummary{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}
