package database

import (
	"escrita_backend/internal/config"
	"escrita_backend/internal/model"
	"escrita_backend/pkg/logger"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Open 按配置的驱动建立连接，不做迁移
func Open(cfg *config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(debug),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Log.Info("Database connection established", zap.String("driver", cfg.Driver))
	return db, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=UTC",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
			cfg.Charset,
			cfg.ParseTime,
		)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.DBName,
			cfg.SSLMode,
		)
		return postgres.Open(dsn), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "escrita.db"
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func InitDB(cfg *config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	db, err := Open(cfg, debug)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 自动迁移表结构并写入默认成就
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return err
	}
	logger.Log.Info("Database migration completed")

	return SeedAchievements(db)
}

// DefaultAchievements 评估规则依赖的成就目录
func DefaultAchievements() []model.Achievement {
	return []model.Achievement{
		{Code: "first_submission", Title: "Primeira Redação", Description: "Enviou a primeira redação", Points: 10},
		{Code: "ten_submissions", Title: "Escritor Dedicado", Description: "Enviou 10 redações", Points: 50},
		{Code: "fifty_submissions", Title: "Escritor Incansável", Description: "Enviou 50 redações", Points: 200},
		{Code: "excellent_writer", Title: "Escritor Excelente", Description: "Recebeu nota 900 ou mais", Points: 100},
		{Code: "perfect_score", Title: "Nota Máxima", Description: "Recebeu nota 1000", Points: 300},
		{Code: "consistent_performer", Title: "Desempenho Consistente", Description: "Recebeu 5 notas acima de 800", Points: 150},
		{Code: "watched_lesson", Title: "Primeira Aula", Description: "Concluiu uma aula", Points: 5},
		{Code: "course_completed", Title: "Curso Concluído", Description: "Concluiu todas as aulas de um curso", Points: 100},
		{Code: "study_streak_7", Title: "Sequência de 7 Dias", Description: "Estudou por 7 dias seguidos", Points: 70},
	}
}

// SeedAchievements 按 code 补齐缺失的成就，已存在的保持不变
func SeedAchievements(db *gorm.DB) error {
	defaults := DefaultAchievements()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&defaults).Error
}
