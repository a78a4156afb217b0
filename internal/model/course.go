package model

type CourseLevel string

const (
	Beginner     CourseLevel = "Beginner"
	Intermediate CourseLevel = "Intermediate"
	Advanced     CourseLevel = "Advanced"
)

// swagger:model Course
type Course struct {
	BaseModel
	Title        string      `gorm:"size:255;not null" json:"title"`
	Description  string      `gorm:"type:text" json:"description"`
	Category     string      `gorm:"size:100" json:"category"`
	Level        CourseLevel `gorm:"size:20" json:"level"`
	ThumbnailURL string      `gorm:"size:255" json:"thumbnail_url"`
	TotalHours   float64     `gorm:"default:0" json:"total_hours"`
	InstructorID uint        `gorm:"index" json:"instructor_id"`
	Instructor   User        `gorm:"foreignKey:InstructorID" json:"-"`
	Lessons      []Lesson    `gorm:"foreignKey:CourseID" json:"-"`
}

func (Course) TableName() string {
	return "courses"
}

// swagger:model Lesson
type Lesson struct {
	BaseModel
	CourseID    uint   `gorm:"index;not null" json:"course_id"`
	ModuleID    *uint  `gorm:"index" json:"module_id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	VideoURL    string `gorm:"size:255" json:"video_url"`
	Duration    int    `gorm:"default:0" json:"duration"`
	OrderIndex  int    `gorm:"default:0;index" json:"order_index"`
}

func (Lesson) TableName() string {
	return "lessons"
}
