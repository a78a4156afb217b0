package service

import (
	"context"
	"errors"
	"escrita_backend/internal/model"
	"escrita_backend/internal/testutil"
	"escrita_backend/internal/util"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintPtr(v uint) *uint { return &v }

func TestGroupLessonsByModule(t *testing.T) {
	lessons := []LessonView{
		{Lesson: model.Lesson{Title: "a", ModuleID: uintPtr(2)}},
		{Lesson: model.Lesson{Title: "b"}},
		{Lesson: model.Lesson{Title: "c", ModuleID: uintPtr(1)}},
		{Lesson: model.Lesson{Title: "d", ModuleID: uintPtr(2)}},
		{Lesson: model.Lesson{Title: "e"}},
	}

	modules := GroupLessonsByModule(lessons)
	require.Len(t, modules, 3)

	assert.Equal(t, uint(2), *modules[0].ID)
	assert.Nil(t, modules[1].ID)
	assert.Equal(t, uint(1), *modules[2].ID)

	titles := func(m CourseModule) string {
		var out []string
		for _, l := range m.Lessons {
			out = append(out, l.Title)
		}
		return strings.Join(out, "")
	}
	assert.Equal(t, "ad", titles(modules[0]))
	assert.Equal(t, "be", titles(modules[1]))
	assert.Equal(t, "c", titles(modules[2]))

	assert.Empty(t, GroupLessonsByModule(nil))
}

func TestGetCourse_LessonsAndModules(t *testing.T) {
	env := newTestEnv(t)
	instructor := env.instructor(t)
	student := env.student(t, "paula")
	ctx := context.Background()

	course, err := env.course.CreateCourse(ctx, instructor.ID, CreateCourseInput{
		Title: "Redação ENEM", Description: "Curso completo", Category: "ENEM", Level: model.Beginner,
	})
	require.NoError(t, err)

	for i, module := range []*uint{uintPtr(10), nil, uintPtr(10)} {
		_, err := env.course.CreateLesson(ctx, course.ID, CreateLessonInput{
			Title:      "Aula",
			OrderIndex: i + 1,
			ModuleID:   module,
		})
		require.NoError(t, err)
	}

	detail, err := env.course.GetCourse(ctx, course.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, "Redação ENEM", detail.Title)
	require.NotNil(t, detail.Instructor)
	assert.Equal(t, instructor.ID, detail.Instructor.ID)
	assert.Len(t, detail.Lessons, 3)
	require.Len(t, detail.Modules, 2)
	assert.Len(t, detail.Modules[0].Lessons, 2)
	assert.Equal(t, 0, detail.Progress.Percentage)

	_, err = env.course.GetCourse(ctx, 9999, student.ID)
	assert.True(t, util.IsKind(err, util.KindNotFound))

	_, err = env.course.CreateLesson(ctx, 9999, CreateLessonInput{Title: "Aula"})
	assert.True(t, util.IsKind(err, util.KindNotFound))
}

func TestMarkLessonComplete_ProgressAndAchievements(t *testing.T) {
	env := newTestEnv(t)
	instructor := env.instructor(t)
	student := env.student(t, "quinn")
	course, lessons := testutil.CreateCourse(t, env.db, instructor.ID, "Gramática", 2)
	ctx := context.Background()

	first, err := env.course.MarkLessonComplete(ctx, lessons[0].ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, course.ID, first.CourseID)
	assert.Equal(t, 50, first.Progress.Percentage)
	assert.False(t, first.Progress.CourseCompleted)
	assert.Equal(t, []string{"watched_lesson"}, codes(first.NewAchievements))

	again, err := env.course.MarkLessonComplete(ctx, lessons[0].ID, student.ID)
	require.NoError(t, err)
	assert.Empty(t, again.NewAchievements)
	assert.Equal(t, 1, again.Progress.CompletedLessons)

	var rows int64
	env.db.Model(&model.UserProgress{}).Where("user_id = ?", student.ID).Count(&rows)
	assert.EqualValues(t, 1, rows)

	last, err := env.course.MarkLessonComplete(ctx, lessons[1].ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, last.Progress.Percentage)
	assert.True(t, last.Progress.CourseCompleted)
	assert.Equal(t, []string{"course_completed"}, codes(last.NewAchievements))

	progress, err := env.course.GetCourseProgress(ctx, course.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.CompletedLessons)
	assert.Equal(t, 2, progress.TotalLessons)

	_, err = env.course.MarkLessonComplete(ctx, 9999, student.ID)
	assert.True(t, util.IsKind(err, util.KindNotFound))
}

func TestCourseProgressIsPerUser(t *testing.T) {
	env := newTestEnv(t)
	instructor := env.instructor(t)
	alice := env.student(t, "rita")
	bob := env.student(t, "saulo")
	course, lessons := testutil.CreateCourse(t, env.db, instructor.ID, "Coesão", 1)
	ctx := context.Background()

	_, err := env.course.MarkLessonComplete(ctx, lessons[0].ID, alice.ID)
	require.NoError(t, err)

	forAlice, err := env.course.GetCourse(ctx, course.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, forAlice.Progress.CourseCompleted)
	assert.True(t, forAlice.Lessons[0].Completed)

	forBob, err := env.course.GetCourse(ctx, course.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, forBob.Progress.CourseCompleted)
	assert.False(t, forBob.Lessons[0].Completed)
}

func TestGetAllAndRecentCourses(t *testing.T) {
	env := newTestEnv(t)
	instructor := env.instructor(t)
	student := env.student(t, "tania")
	first, _ := testutil.CreateCourse(t, env.db, instructor.ID, "Introdução", 2)
	second, lessons := testutil.CreateCourse(t, env.db, instructor.ID, "Argumentação", 4)
	ctx := context.Background()

	recent, err := env.course.GetRecentCourses(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, recent)

	_, err = env.course.MarkLessonComplete(ctx, lessons[0].ID, student.ID)
	require.NoError(t, err)

	all, err := env.course.GetAllCourses(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, 0, all[0].Progress.Percentage)
	assert.Equal(t, 25, all[1].Progress.Percentage)
	assert.Equal(t, 4, all[1].Progress.TotalLessons)

	recent, err = env.course.GetRecentCourses(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, second.ID, recent[0].ID)
}

func TestAttachLessonVideo(t *testing.T) {
	env := newTestEnv(t)
	instructor := env.instructor(t)
	_, lessons := testutil.CreateCourse(t, env.db, instructor.ID, "Vídeos", 1)
	ctx := context.Background()
	video := []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05}

	env.course.ProbeVideo = func(string) (*util.VideoInfo, error) {
		return &util.VideoInfo{Duration: 61.6}, nil
	}
	lesson, err := env.course.AttachLessonVideo(ctx, lessons[0].ID, testutil.FileHeader(t, "file", "aula.mp4", video), 10)
	require.NoError(t, err)
	assert.Equal(t, 62, lesson.Duration)
	assert.True(t, strings.HasPrefix(lesson.VideoURL, "/uploads/videos/"))

	env.course.ProbeVideo = func(string) (*util.VideoInfo, error) {
		return nil, errors.New("ffprobe not installed")
	}
	lesson, err = env.course.AttachLessonVideo(ctx, lessons[0].ID, testutil.FileHeader(t, "file", "aula.mp4", video), 30)
	require.NoError(t, err)
	assert.Equal(t, 30, lesson.Duration)

	_, err = env.course.AttachLessonVideo(ctx, lessons[0].ID, testutil.FileHeader(t, "file", "aula.txt", video), 30)
	assert.True(t, util.IsKind(err, util.KindValidation))
}
