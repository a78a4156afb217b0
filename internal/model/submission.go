package model

type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionCompleted SubmissionStatus = "completed"
)

// swagger:model WritingSubmission
type WritingSubmission struct {
	BaseModel
	UserID     uint             `gorm:"index;not null" json:"user_id"`
	Title      string           `gorm:"size:255;not null" json:"title"`
	Content    string           `gorm:"type:text;not null" json:"content"`
	FileURL    *string          `gorm:"size:255" json:"file_url"`
	Status     SubmissionStatus `gorm:"size:20;default:'pending';index" json:"status"`
	ReviewerID *uint            `gorm:"index" json:"reviewer_id"`
	Feedback   string           `gorm:"type:text" json:"feedback"`
	Score      *int             `json:"score"`
	User       User             `gorm:"foreignKey:UserID" json:"-"`
	Reviewer   *User            `gorm:"foreignKey:ReviewerID" json:"-"`
}

func (WritingSubmission) TableName() string {
	return "writing_submissions"
}

func (s *WritingSubmission) IsPending() bool {
	return s.Status == SubmissionPending
}
