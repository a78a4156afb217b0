// 写入演示用的讲师、学生、课程和课时
//
// 用法: go run scripts/seed_demo.go [configs/config.yaml]

package main

import (
	"escrita_backend/internal/config"
	"escrita_backend/internal/model"
	"escrita_backend/pkg/database"
	"escrita_backend/pkg/logger"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// seedConfig 只读取数据库部分
type seedConfig struct {
	Server struct {
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	Database struct {
		Driver   string `yaml:"driver"`
		Path     string `yaml:"path"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		Charset  string `yaml:"charset"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`
}

type demoLesson struct {
	Title    string
	Module   uint
	Duration int
}

type demoCourse struct {
	Course  model.Course
	Lessons []demoLesson
}

var demoCourses = []demoCourse{
	{
		Course: model.Course{
			Title:       "Redação ENEM do Zero",
			Description: "Estrutura do texto dissertativo-argumentativo e as cinco competências.",
			Category:    "ENEM",
			Level:       model.Beginner,
			TotalHours:  6,
		},
		Lessons: []demoLesson{
			{Title: "Conhecendo as competências", Module: 1, Duration: 900},
			{Title: "Tema e proposta de intervenção", Module: 1, Duration: 1200},
			{Title: "Introdução com repertório", Module: 2, Duration: 1100},
			{Title: "Desenvolvimento e coesão", Module: 2, Duration: 1300},
			{Title: "Conclusão completa", Module: 3, Duration: 1000},
		},
	},
	{
		Course: model.Course{
			Title:       "Argumentação Avançada",
			Description: "Repertório sociocultural, contra-argumentação e autoria.",
			Category:    "Vestibular",
			Level:       model.Advanced,
			TotalHours:  4,
		},
		Lessons: []demoLesson{
			{Title: "Repertório legitimado", Module: 1, Duration: 1500},
			{Title: "Contra-argumentação", Module: 1, Duration: 1400},
			{Title: "Marcas de autoria", Module: 2, Duration: 1600},
		},
	},
}

func main() {
	path := "configs/config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var sc seedConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	cfg := &config.Config{}
	cfg.Server.Mode = sc.Server.Mode
	cfg.Database = config.DatabaseConfig{
		Driver:    sc.Database.Driver,
		Path:      sc.Database.Path,
		Host:      sc.Database.Host,
		Port:      sc.Database.Port,
		User:      sc.Database.User,
		Password:  sc.Database.Password,
		DBName:    sc.Database.DBName,
		Charset:   sc.Database.Charset,
		ParseTime: true,
		SSLMode:   sc.Database.SSLMode,
	}
	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, cfg.Server.IsDebug())
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		instructor, err := ensureUser(tx, "Professora Demo", "professora@escritamaster.com", model.Instructor)
		if err != nil {
			return err
		}
		if _, err := ensureUser(tx, "Aluno Demo", "aluno@escritamaster.com", model.Student); err != nil {
			return err
		}
		if _, err := ensureUser(tx, "Admin Demo", "admin@escritamaster.com", model.Admin); err != nil {
			return err
		}

		for _, dc := range demoCourses {
			course := dc.Course
			course.InstructorID = instructor.ID
			if err := tx.Where(model.Course{Title: course.Title}).FirstOrCreate(&course).Error; err != nil {
				return err
			}
			for i, dl := range dc.Lessons {
				module := dl.Module
				lesson := model.Lesson{
					CourseID:   course.ID,
					ModuleID:   &module,
					Title:      dl.Title,
					Duration:   dl.Duration,
					OrderIndex: i + 1,
				}
				if err := tx.Where(model.Lesson{CourseID: course.ID, Title: dl.Title}).FirstOrCreate(&lesson).Error; err != nil {
					return err
				}
			}
			log.Printf("课程已就绪: %s (%d 个课时)", course.Title, len(dc.Lessons))
		}
		return nil
	})
	if err != nil {
		log.Fatalf("写入演示数据失败: %v", err)
	}
	log.Println("完成！演示账号密码均为 demo123")
}

func ensureUser(tx *gorm.DB, name, email string, role model.UserRole) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte("demo123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := model.User{Name: name, Email: email, Password: string(hash), Role: role}
	if err := tx.Where(model.User{Email: email}).FirstOrCreate(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
