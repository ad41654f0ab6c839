package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackit/internal/apperr"
	"stackit/internal/models"
)

func strPtr(s string) *string {
	return &s
}

func TestCreateQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user("alice")
	bob := f.user("bob")

	q, err := f.question.Create(ctx, alice, QuestionInput{
		Title:       strPtr("  How do I close a channel safely?  "),
		Description: strPtr(`<p>I keep getting a panic when closing. cc @bob</p><script>alert(1)</script>`),
		Tags:        []string{"Go", "concurrency", "go"},
	})
	require.NoError(t, err)
	assert.Equal(t, "How do I close a channel safely?", q.Title)
	assert.NotContains(t, q.Description, "<script")
	require.Len(t, q.Tags, 2)

	var tags []models.Tag
	require.NoError(t, f.db.Order("name").Find(&tags).Error)
	require.Len(t, tags, 2)
	for _, tag := range tags {
		assert.Equal(t, 1, tag.QuestionCount, tag.Name)
		assert.False(t, tag.IsApproved, tag.Name)
	}

	mentions := f.emitter.ofType(models.NotificationTypeMention)
	require.Len(t, mentions, 1)
	assert.Equal(t, bob.ID, mentions[0].RecipientID)
}

func TestCreateQuestionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user("alice")
	longDesc := "<p>This description is long enough to pass.</p>"

	cases := map[string]QuestionInput{
		"short title":       {Title: strPtr("Too short"), Description: &longDesc, Tags: []string{"go"}},
		"short description": {Title: strPtr("A perfectly fine title"), Description: strPtr("<p><b>tiny</b></p>"), Tags: []string{"go"}},
		"no tags":           {Title: strPtr("A perfectly fine title"), Description: &longDesc},
		"too many tags":     {Title: strPtr("A perfectly fine title"), Description: &longDesc, Tags: []string{"a1", "b1", "c1", "d1", "e1", "f1"}},
		"missing fields":    {Tags: []string{"go"}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.question.Create(ctx, alice, in)
			assert.True(t, apperr.Is(err, apperr.KindInvalidInput), err)
		})
	}

	var count int64
	f.db.Model(&models.Question{}).Count(&count)
	assert.Zero(t, count)
}

func TestGetQuestionCountsViewsOncePerViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user("alice")
	bob := f.user("bob")
	q := f.questionBy(alice)

	got, err := f.question.Get(ctx, q.ID, Viewer{UserID: bob.ID, IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Views)

	// 同一个用户换 IP 也不重复计数
	got, err = f.question.Get(ctx, q.ID, Viewer{UserID: bob.ID, IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Views)

	got, err = f.question.Get(ctx, q.ID, Viewer{IP: "10.0.0.3"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Views)

	got, err = f.question.Get(ctx, q.ID, Viewer{})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Views)

	// 清掉前置缓存后仍由数据库记录去重
	f.resetViewCache()
	counted, err := f.question.RecordView(ctx, q.ID, Viewer{IP: "10.0.0.3"})
	require.NoError(t, err)
	assert.False(t, counted)

	_, err = f.question.Get(ctx, 999, Viewer{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRecordViewAfterWindowCountsAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user("alice")
	q := f.questionBy(alice)
	viewer := Viewer{IP: "192.168.1.1"}

	counted, err := f.question.RecordView(ctx, q.ID, viewer)
	require.NoError(t, err)
	assert.True(t, counted)

	require.NoError(t, f.db.Model(&models.QuestionView{}).
		Where("question_id = ?", q.ID).
		UpdateColumn("viewed_at", time.Now().UTC().Add(-ViewDedupWindow-time.Hour)).Error)
	f.resetViewCache()

	counted, err = f.question.RecordView(ctx, q.ID, viewer)
	require.NoError(t, err)
	assert.True(t, counted)

	var stored models.Question
	f.reload(&stored, q.ID)
	assert.Equal(t, 2, stored.Views)

	// 刚刷新过的记录不会被清理
	pruned, err := f.question.PruneViews(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestGetQuestionFillsUserVotesAndOrdersAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user("alice")
	bob := f.user("bob")
	q := f.questionBy(alice)
	a1 := f.answerBy(bob, q)
	a2 := f.answerBy(bob, q)

	_, err := f.votes.CastVote(ctx, models.VoteTargetQuestion, q.ID, bob.ID, 1)
	require.NoError(t, err)
	_, err = f.votes.CastVote(ctx, models.VoteTargetAnswer, a1.ID, alice.ID, -1)
	require.NoError(t, err)
	_, err = f.accept.AcceptAnswer(ctx, q.ID, a2.ID, alice.ID)
	require.NoError(t, err)

	got, err := f.question.Get(ctx, q.ID, Viewer{UserID: alice.ID})
	require.NoError(t, err)
	assert.Nil(t, got.UserVote)
	require.Len(t, got.Answers, 2)
	assert.Equal(t, a2.ID, got.Answers[0].ID, "accepted answer first")
	assert.Equal(t, intPtr(-1), got.Answers[1].UserVote)
	assert.Equal(t, 2, got.AnswerCount)

	got, err = f.question.Get(ctx, q.ID, Viewer{UserID: bob.ID})
	require.NoError(t, err)
	assert.Equal(t, intPtr(1), got.UserVote)
	assert.Equal(t, 1, got.VoteCount)
}

func TestListQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user("alice")
	q1 := f.questionBy(alice, "go")
	q2 := f.questionBy(alice, "python")
	f.answerBy(alice, q1)
	f.answerBy(alice, q1)

	all, total, err := f.question.List(ctx, ListQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, all, 2)
	assert.Equal(t, q2.ID, all[0].ID, "newest first")
	assert.Equal(t, 2, all[1].AnswerCount)
	assert.NotEmpty(t, all[0].Tags)

	byTag, total, err := f.question.List(ctx, ListQuery{Tag: "GO"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, q1.ID, byTag[0].ID)

	unanswered, total, err := f.question.List(ctx, ListQuery{Unanswered: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, q2.ID, unanswered[0].ID)
}

func TestUpdateQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user("alice")
	bob := f.user("bob")
	root := f.admin("root")
	q := f.questionBy(alice, "go", "sql")

	_, err := f.question.Update(ctx, q.ID, bob, QuestionInput{Title: strPtr("Hijacked question title")})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	updated, err := f.question.Update(ctx, q.ID, alice, QuestionInput{
		Title: strPtr("A better question title"),
		Tags:  []string{"go", "postgres"},
	})
	require.NoError(t, err)
	assert.Equal(t, "A better question title", updated.Title)
	require.Len(t, updated.Tags, 2)

	counts := map[string]int{}
	var tags []models.Tag
	require.NoError(t, f.db.Find(&tags).Error)
	for _, tag := range tags {
		counts[tag.Name] = tag.QuestionCount
	}
	assert.Equal(t, map[string]int{"go": 1, "sql": 0, "postgres": 1}, counts)

	_, err = f.question.Update(ctx, q.ID, root, QuestionInput{Description: strPtr("short")})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = f.question.Update(ctx, 999, root, QuestionInput{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteQuestionCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user("alice")
	bob := f.user("bob")
	q := f.questionBy(alice, "go")
	keep := f.questionBy(bob, "go")
	a := f.answerBy(bob, q)
	c := f.commentBy(alice, a, nil)
	ai := models.AIAnswer{QuestionID: q.ID, Content: "x", ContentHTML: "x"}
	require.NoError(t, f.db.Create(&ai).Error)

	_, err := f.votes.CastVote(ctx, models.VoteTargetQuestion, q.ID, bob.ID, 1)
	require.NoError(t, err)
	_, err = f.votes.CastVote(ctx, models.VoteTargetAnswer, a.ID, alice.ID, 1)
	require.NoError(t, err)
	_, err = f.votes.CastVote(ctx, models.VoteTargetComment, c.ID, bob.ID, 1)
	require.NoError(t, err)
	_, err = f.votes.CastVote(ctx, models.VoteTargetAIAnswer, ai.ID, bob.ID, 1)
	require.NoError(t, err)
	_, err = f.question.RecordView(ctx, q.ID, Viewer{UserID: bob.ID})
	require.NoError(t, err)

	assert.True(t, apperr.Is(f.question.Delete(ctx, q.ID, bob), apperr.KindForbidden))
	require.NoError(t, f.question.Delete(ctx, q.ID, alice))

	for name, model := range map[string]any{
		"answers":  &models.Answer{},
		"comments": &models.Comment{},
		"votes":    &models.Vote{},
		"ai":       &models.AIAnswer{},
		"views":    &models.QuestionView{},
	} {
		var count int64
		f.db.Model(model).Count(&count)
		assert.Zero(t, count, name)
	}

	var tag models.Tag
	require.NoError(t, f.db.Where("name = ?", "go").First(&tag).Error)
	assert.Equal(t, 1, tag.QuestionCount)

	var remaining models.Question
	f.reload(&remaining, keep.ID)
	assert.True(t, apperr.Is(f.question.Delete(ctx, q.ID, alice), apperr.KindNotFound))
}
