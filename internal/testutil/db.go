package testutil

import (
	"escrita_backend/internal/config"
	"escrita_backend/internal/model"
	"escrita_backend/pkg/database"
	"escrita_backend/pkg/logger"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewTestDB 每个测试独立的内存 sqlite，迁移并写入默认成就。
// 只保留一个连接，内存库随连接存在。
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDB(t, ":memory:", 1)
}

// NewFileTestDB 临时目录下的文件 sqlite，允许多个连接并发写入
func NewFileTestDB(t *testing.T, conns int) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "escrita_test.db") + "?_busy_timeout=5000"
	return openTestDB(t, dsn, conns)
}

func openTestDB(t *testing.T, dsn string, conns int) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.NewGormLogger(false),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// TestConfig 测试用配置，调试模式、关闭发信以外的外部依赖
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: "0", Mode: "debug"},
		App:    config.AppConfig{Name: "EscritaMaster", FrontendURL: "http://localhost:3000"},
		JWT:    config.JWTConfig{Secret: "test-secret-test-secret-test-secret", ExpireTime: time.Hour},
		Storage: config.StorageConfig{
			Type:      "local",
			LocalPath: t.TempDir(),
		},
		Mail: config.MailConfig{Enabled: true, Provider: "log"},
		Payment: config.PaymentConfig{
			ServerKey:     "SB-Mid-server-test",
			PlanDays:      30,
			Currency:      "BRL",
			NotifyEnabled: true,
		},
		RateLimit: config.RateLimitConfig{MaxRequests: 10000, WindowMinutes: 1, AuthMaxRequests: 10000},
	}
}

// CreateUser 直接写库创建用户，密码为 password
func CreateUser(t *testing.T, db *gorm.DB, name, email string, role model.UserRole) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &model.User{Name: name, Email: email, Password: string(hash), Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateCourse 创建课程及 n 个课时，课时按顺序编号
func CreateCourse(t *testing.T, db *gorm.DB, instructorID uint, title string, lessons int) (*model.Course, []model.Lesson) {
	t.Helper()
	course := &model.Course{Title: title, Description: title, Category: "ENEM", Level: model.Beginner, InstructorID: instructorID}
	require.NoError(t, db.Create(course).Error)

	created := make([]model.Lesson, 0, lessons)
	for i := 1; i <= lessons; i++ {
		lesson := model.Lesson{CourseID: course.ID, Title: title + " lesson", OrderIndex: i}
		require.NoError(t, db.Create(&lesson).Error)
		created = append(created, lesson)
	}
	return course, created
}
