package service

import (
	"context"
	"escrita_backend/internal/repository"
	"fmt"
	"sort"
	"time"
)

type EventKind int

const (
	EventSubmitted EventKind = iota + 1
	EventReviewed
	EventLessonCompleted
)

func (k EventKind) String() string {
	switch k {
	case EventSubmitted:
		return "submitted"
	case EventReviewed:
		return "reviewed"
	case EventLessonCompleted:
		return "lesson_completed"
	default:
		return "unknown"
	}
}

// AchievementEvent 触发成就评估的业务事件
type AchievementEvent struct {
	Kind     EventKind
	UserID   uint
	Score    int  // EventReviewed
	LessonID uint // EventLessonCompleted
	CourseID uint // EventLessonCompleted
}

type RuleKind int

const (
	RuleSubmissionCount RuleKind = iota + 1
	RuleReviewScoreAtLeast
	RuleReviewScoreExact
	RuleHighScoreCount
	RuleLessonWatched
	RuleCourseCompleted
	RuleStudyStreak
)

// Rule 成就规则：Kind 决定判定方式，Threshold 的含义随 Kind 变化
type Rule struct {
	Kind      RuleKind
	Code      string
	Threshold int
	MinScore  int // RuleHighScoreCount 中计入的最低分
}

// rulesByEvent 每种事件需要评估的规则，按顺序授予
var rulesByEvent = map[EventKind][]Rule{
	EventSubmitted: {
		{Kind: RuleSubmissionCount, Code: "first_submission", Threshold: 1},
		{Kind: RuleSubmissionCount, Code: "ten_submissions", Threshold: 10},
		{Kind: RuleSubmissionCount, Code: "fifty_submissions", Threshold: 50},
		{Kind: RuleStudyStreak, Code: "study_streak_7", Threshold: 7},
	},
	EventReviewed: {
		{Kind: RuleReviewScoreAtLeast, Code: "excellent_writer", Threshold: 900},
		{Kind: RuleReviewScoreExact, Code: "perfect_score", Threshold: 1000},
		{Kind: RuleHighScoreCount, Code: "consistent_performer", Threshold: 5, MinScore: 800},
	},
	EventLessonCompleted: {
		{Kind: RuleLessonWatched, Code: "watched_lesson"},
		{Kind: RuleCourseCompleted, Code: "course_completed"},
		{Kind: RuleStudyStreak, Code: "study_streak_7", Threshold: 7},
	},
}

// ruleRepos 评估规则时用到的仓储，调用方需传入事务内的实例
type ruleRepos struct {
	submissions *repository.SubmissionRepository
	progress    *repository.ProgressRepository
	courses     *repository.CourseRepository
}

func evaluateRule(ctx context.Context, repos ruleRepos, rule Rule, ev AchievementEvent) (bool, error) {
	switch rule.Kind {
	case RuleSubmissionCount:
		count, err := repos.submissions.CountByUser(ctx, ev.UserID)
		if err != nil {
			return false, err
		}
		return count == int64(rule.Threshold), nil

	case RuleReviewScoreAtLeast:
		return ev.Score >= rule.Threshold, nil

	case RuleReviewScoreExact:
		return ev.Score == rule.Threshold, nil

	case RuleHighScoreCount:
		count, err := repos.submissions.CountScoresAtLeast(ctx, ev.UserID, rule.MinScore)
		if err != nil {
			return false, err
		}
		return count >= int64(rule.Threshold), nil

	case RuleLessonWatched:
		progress, err := repos.progress.Find(ctx, ev.UserID, ev.LessonID)
		if err != nil {
			if repository.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return progress.Completed, nil

	case RuleCourseCompleted:
		total, err := repos.courses.CountLessons(ctx, ev.CourseID)
		if err != nil {
			return false, err
		}
		completed, err := repos.progress.CountCompletedInCourse(ctx, ev.UserID, ev.CourseID)
		if err != nil {
			return false, err
		}
		return total > 0 && completed >= total, nil

	case RuleStudyStreak:
		lessons, err := repos.progress.CompletionTimes(ctx, ev.UserID)
		if err != nil {
			return false, err
		}
		writings, err := repos.submissions.SubmissionTimes(ctx, ev.UserID)
		if err != nil {
			return false, err
		}
		return StudyStreak(append(lessons, writings...)) >= rule.Threshold, nil

	default:
		return false, fmt.Errorf("unknown achievement rule kind %d", rule.Kind)
	}
}

// StudyStreak 以最近一个活动日为终点，连续有活动的 UTC 自然日天数
func StudyStreak(activity []time.Time) int {
	if len(activity) == 0 {
		return 0
	}

	seen := make(map[time.Time]bool, len(activity))
	days := make([]time.Time, 0, len(activity))
	for _, t := range activity {
		u := t.UTC()
		d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	streak := 1
	for i := 1; i < len(days); i++ {
		if !days[i-1].AddDate(0, 0, -1).Equal(days[i]) {
			break
		}
		streak++
	}
	return streak
}
