package service

import (
	"context"
	"escrita_backend/internal/model"
	"escrita_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submit(t *testing.T, env *testEnv, userID uint, title string) *SubmissionResult {
	t.Helper()
	res, err := env.submission.SubmitWriting(context.Background(), SubmitInput{
		UserID:  userID,
		Title:   title,
		Content: "Texto dissertativo-argumentativo sobre o tema proposto.",
	})
	require.NoError(t, err)
	return res
}

func TestSubmitWriting_FirstSubmissionGrantedOnce(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "ana")

	first := submit(t, env, student.ID, "Redação 1")
	assert.Equal(t, model.SubmissionPending, first.Submission.Status)
	assert.Nil(t, first.Submission.Score)
	assert.Equal(t, []string{"first_submission"}, codes(first.NewAchievements))

	second := submit(t, env, student.ID, "Redação 2")
	assert.Empty(t, second.NewAchievements)
	assert.NotNil(t, second.NewAchievements)
}

func TestSubmitWriting_CountMilestones(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "bruno")

	granted := map[string][]int{}
	for i := 1; i <= 51; i++ {
		result := submit(t, env, student.ID, "Redação")
		for _, code := range codes(result.NewAchievements) {
			granted[code] = append(granted[code], i)
		}
	}

	assert.Equal(t, map[string][]int{
		"first_submission":  {1},
		"ten_submissions":   {10},
		"fifty_submissions": {50},
	}, granted)
}

func TestSubmitWriting_Validation(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "carla")

	_, err := env.submission.SubmitWriting(context.Background(), SubmitInput{UserID: student.ID, Title: "  ", Content: ""})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidation))

	appErr, _ := util.AsAppError(err)
	assert.Len(t, appErr.Fields, 2)

	var count int64
	env.db.Model(&model.WritingSubmission{}).Count(&count)
	assert.Zero(t, count)
}

func TestSubmitWriting_StudyStreak(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "davi")

	now := time.Now().UTC()
	for i := 6; i >= 1; i-- {
		sub := &model.WritingSubmission{
			UserID:  student.ID,
			Title:   "Treino",
			Content: "Texto",
			Status:  model.SubmissionPending,
		}
		sub.CreatedAt = now.AddDate(0, 0, -i)
		require.NoError(t, env.db.Create(sub).Error)
	}

	res := submit(t, env, student.ID, "Sétimo dia")
	assert.Contains(t, codes(res.NewAchievements), "study_streak_7")
}

func TestReviewSubmission_ScoreAchievements(t *testing.T) {
	tests := []struct {
		name  string
		score int
		want  []string
	}{
		{"perfect score", 1000, []string{"excellent_writer", "perfect_score"}},
		{"excellent", 950, []string{"excellent_writer"}},
		{"boundary", 900, []string{"excellent_writer"}},
		{"average", 600, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			student := env.student(t, "eva")
			reviewer := env.instructor(t)
			sub := submit(t, env, student.ID, "Redação")

			res, err := env.submission.ReviewSubmission(context.Background(), sub.Submission.ID, ReviewInput{
				ReviewerID: reviewer.ID,
				Feedback:   "Boa argumentação.",
				Score:      tt.score,
			})
			require.NoError(t, err)

			assert.Equal(t, model.SubmissionCompleted, res.Submission.Status)
			require.NotNil(t, res.Submission.Score)
			assert.Equal(t, tt.score, *res.Submission.Score)
			require.NotNil(t, res.Submission.ReviewerID)
			assert.Equal(t, reviewer.ID, *res.Submission.ReviewerID)
			assert.Equal(t, tt.want, codes(res.NewAchievements))
		})
	}
}

func TestReviewSubmission_ConsistentPerformer(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "fabio")
	reviewer := env.instructor(t)

	var last *SubmissionResult
	for i := 0; i < 5; i++ {
		sub := submit(t, env, student.ID, "Redação")
		var err error
		last, err = env.submission.ReviewSubmission(context.Background(), sub.Submission.ID, ReviewInput{
			ReviewerID: reviewer.ID,
			Feedback:   "Consistente.",
			Score:      820,
		})
		require.NoError(t, err)
		if i < 4 {
			assert.Empty(t, last.NewAchievements)
		}
	}
	assert.Equal(t, []string{"consistent_performer"}, codes(last.NewAchievements))
}

func TestReviewSubmission_AlreadyReviewed(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "gabi")
	reviewer := env.instructor(t)
	sub := submit(t, env, student.ID, "Redação")
	ctx := context.Background()

	_, err := env.submission.ReviewSubmission(ctx, sub.Submission.ID, ReviewInput{ReviewerID: reviewer.ID, Feedback: "Ok", Score: 700})
	require.NoError(t, err)

	_, err = env.submission.ReviewSubmission(ctx, sub.Submission.ID, ReviewInput{ReviewerID: reviewer.ID, Feedback: "De novo", Score: 1000})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindConflict))

	view, err := env.submission.GetSubmission(ctx, sub.Submission.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 700, *view.Score)
	assert.Equal(t, "Ok", view.Feedback)
}

func TestReviewSubmission_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "hugo")
	reviewer := env.instructor(t)
	sub := submit(t, env, student.ID, "Redação")
	ctx := context.Background()

	_, err := env.submission.ReviewSubmission(ctx, sub.Submission.ID, ReviewInput{ReviewerID: reviewer.ID, Feedback: "Ok", Score: 1001})
	assert.True(t, util.IsKind(err, util.KindValidation))

	_, err = env.submission.ReviewSubmission(ctx, sub.Submission.ID, ReviewInput{ReviewerID: reviewer.ID, Feedback: " ", Score: 500})
	assert.True(t, util.IsKind(err, util.KindValidation))

	_, err = env.submission.ReviewSubmission(ctx, 9999, ReviewInput{ReviewerID: reviewer.ID, Feedback: "Ok", Score: 500})
	assert.True(t, util.IsKind(err, util.KindNotFound))
}

func TestReviewSubmission_RollsBackWhenCatalogueIncomplete(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "iris")
	reviewer := env.instructor(t)
	sub := submit(t, env, student.ID, "Redação")
	ctx := context.Background()

	require.NoError(t, env.db.Unscoped().Where("code = ?", "perfect_score").Delete(&model.Achievement{}).Error)

	_, err := env.submission.ReviewSubmission(ctx, sub.Submission.ID, ReviewInput{ReviewerID: reviewer.ID, Feedback: "Perfeito", Score: 1000})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindInternal))

	var stored model.WritingSubmission
	require.NoError(t, env.db.First(&stored, sub.Submission.ID).Error)
	assert.Equal(t, model.SubmissionPending, stored.Status)
	assert.Nil(t, stored.Score)

	unlocked, err := env.achievement.GetUserAchievements(ctx, student.ID)
	require.NoError(t, err)
	for _, a := range unlocked {
		assert.NotEqual(t, "excellent_writer", a.Code)
	}
}

func TestGetSubmission_Visibility(t *testing.T) {
	env := newTestEnv(t)
	author := env.student(t, "joao")
	other := env.student(t, "karen")
	reviewer := env.instructor(t)
	sub := submit(t, env, author.ID, "Redação")
	ctx := context.Background()

	_, err := env.submission.GetSubmission(ctx, sub.Submission.ID, author.ID)
	assert.NoError(t, err)

	_, err = env.submission.GetSubmission(ctx, sub.Submission.ID, other.ID)
	assert.True(t, util.IsKind(err, util.KindNotFound))

	view, err := env.submission.GetSubmission(ctx, sub.Submission.ID, reviewer.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Author)
	assert.Equal(t, author.ID, view.Author.ID)

	_, err = env.submission.GetFeedback(ctx, sub.Submission.ID, author.ID)
	assert.True(t, util.IsKind(err, util.KindNotFound))
}

func TestUpdateAndDelete_OnlyPendingOwned(t *testing.T) {
	env := newTestEnv(t)
	author := env.student(t, "lara")
	other := env.student(t, "mario")
	reviewer := env.instructor(t)
	ctx := context.Background()

	pending := submit(t, env, author.ID, "Rascunho")
	title := "Rascunho revisado"
	updated, err := env.submission.UpdateSubmission(ctx, pending.Submission.ID, author.ID, UpdateSubmissionInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	_, err = env.submission.UpdateSubmission(ctx, pending.Submission.ID, other.ID, UpdateSubmissionInput{Title: &title})
	assert.True(t, util.IsKind(err, util.KindNotFound))

	reviewed := submit(t, env, author.ID, "Final")
	_, err = env.submission.ReviewSubmission(ctx, reviewed.Submission.ID, ReviewInput{ReviewerID: reviewer.ID, Feedback: "Ok", Score: 500})
	require.NoError(t, err)

	_, err = env.submission.UpdateSubmission(ctx, reviewed.Submission.ID, author.ID, UpdateSubmissionInput{Title: &title})
	assert.True(t, util.IsKind(err, util.KindConflict))
	assert.True(t, util.IsKind(env.submission.DeleteSubmission(ctx, reviewed.Submission.ID, author.ID), util.KindConflict))

	require.NoError(t, env.submission.DeleteSubmission(ctx, pending.Submission.ID, author.ID))
	_, err = env.submission.GetSubmission(ctx, pending.Submission.ID, author.ID)
	assert.True(t, util.IsKind(err, util.KindNotFound))
}

func TestSubmissionStatsAndListing(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "nina")
	reviewer := env.instructor(t)
	ctx := context.Background()

	empty, err := env.submission.GetSubmissionStats(ctx, student.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalSubmissions)
	assert.Nil(t, empty.AverageScore)
	assert.Nil(t, empty.HighestScore)

	for _, score := range []int{700, 800} {
		sub := submit(t, env, student.ID, "Redação")
		_, err := env.submission.ReviewSubmission(ctx, sub.Submission.ID, ReviewInput{ReviewerID: reviewer.ID, Feedback: "Ok", Score: score})
		require.NoError(t, err)
	}
	submit(t, env, student.ID, "Pendente")

	stats, err := env.submission.GetSubmissionStats(ctx, student.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalSubmissions)
	assert.EqualValues(t, 2, stats.ReviewedSubmissions)
	require.NotNil(t, stats.AverageScore)
	assert.Equal(t, 750.0, *stats.AverageScore)
	assert.Equal(t, 800, *stats.HighestScore)

	page, err := env.submission.ListUserSubmissions(ctx, student.ID, ListSubmissionsInput{Status: "pending"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	_, err = env.submission.ListUserSubmissions(ctx, student.ID, ListSubmissionsInput{Status: "archived"})
	assert.True(t, util.IsKind(err, util.KindValidation))

	pending, err := env.submission.ListPending(ctx, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending.Total)
}

func TestSubmissionEmails(t *testing.T) {
	env := newTestEnv(t)
	student := env.student(t, "otto")
	reviewer := env.instructor(t)

	sub := submit(t, env, student.ID, "Redação")
	_, err := env.submission.ReviewSubmission(context.Background(), sub.Submission.ID, ReviewInput{ReviewerID: reviewer.ID, Feedback: "Ok", Score: 500})
	require.NoError(t, err)

	env.email.Wait()
	sent := env.provider.templates()
	assert.Contains(t, sent, TemplateSubmissionReceived)
	assert.Contains(t, sent, TemplateAchievements)
	assert.Contains(t, sent, TemplateCorrectionCompleted)
}
