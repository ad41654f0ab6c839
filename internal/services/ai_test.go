package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackit/internal/apperr"
	"stackit/internal/models"
)

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	answer string
	err    error
	last   []ChatMessage
}

func (g *fakeGenerator) Complete(_ context.Context, messages []ChatMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.last = messages
	return g.answer, g.err
}

func (g *fakeGenerator) Model() string { return "fake-model" }

func TestEligible(t *testing.T) {
	long := "<p>" + strings.Repeat("word ", 10) + "</p>"
	tags := []models.Tag{{Name: "go"}}

	assert.True(t, Eligible(&models.Question{Description: long, Tags: tags}))
	assert.False(t, Eligible(&models.Question{Description: long}))
	assert.False(t, Eligible(&models.Question{Description: "<p><em>short one</em></p>", Tags: tags}))
}

func TestConfidence(t *testing.T) {
	long := strings.Repeat("a", 120)
	tags := []models.Tag{{Name: "go"}}
	concise := strings.Repeat("b", 100)

	assert.InDelta(t, 0.7, Confidence(&models.Question{}, "ok"), 1e-9)
	assert.InDelta(t, 0.8, Confidence(&models.Question{Tags: tags}, "ok"), 1e-9)
	assert.InDelta(t, 0.9, Confidence(&models.Question{Tags: tags}, concise), 1e-9)
	assert.InDelta(t, 0.95, Confidence(&models.Question{Description: long, Tags: tags}, concise), 1e-9)
}

func TestGenerateAIAnswerOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asker := f.user("asker")
	q := f.questionBy(asker, "go", "channels")
	gen := &fakeGenerator{answer: "**Solution:** close from the sender side\n\n- use `sync.Once`"}
	svc := NewAIAnswerService(f.db, gen, f.locker, nil)

	_, err := svc.Get(ctx, q.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	answer, created, err := svc.Generate(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "fake-model", answer.Model)
	assert.Contains(t, answer.ContentHTML, "<strong>Solution:</strong>")
	assert.Contains(t, answer.ContentHTML, "<code>sync.Once</code>")
	assert.InDelta(t, 0.9, answer.Confidence, 1e-9)

	require.Len(t, gen.last, 2)
	assert.Equal(t, "system", gen.last[0].Role)
	assert.Contains(t, gen.last[1].Content, q.Title)
	assert.Contains(t, gen.last[1].Content, "Tags: ")

	again, created, err := svc.Generate(ctx, q.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, answer.ID, again.ID)
	assert.Equal(t, 1, gen.calls)

	stored, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, answer.ID, stored.ID)
}

func TestGenerateAIAnswerErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asker := f.user("asker")
	q := f.questionBy(asker)

	_, _, err := NewAIAnswerService(f.db, &fakeGenerator{answer: "x"}, f.locker, nil).Generate(ctx, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, _, err = NewAIAnswerService(f.db, nil, f.locker, nil).Generate(ctx, q.ID)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.ErrorIs(t, err, ErrLLMDisabled)

	_, _, err = NewAIAnswerService(f.db, &fakeGenerator{err: errors.New("quota")}, f.locker, nil).Generate(ctx, q.ID)
	assert.True(t, apperr.Is(err, apperr.KindInternal))

	// 去掉标签后不再符合生成条件
	require.NoError(t, f.db.Model(q).Association("Tags").Clear())
	_, _, err = NewAIAnswerService(f.db, &fakeGenerator{answer: "x"}, f.locker, nil).Generate(ctx, q.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	var count int64
	f.db.Model(&models.AIAnswer{}).Count(&count)
	assert.Zero(t, count)
}

func TestVoteAIAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asker := f.user("asker")
	alice := f.user("alice")
	bob := f.user("bob")
	q := f.questionBy(asker)
	svc := NewAIAnswerService(f.db, &fakeGenerator{answer: "use a mutex"}, f.locker, nil)

	answer, _, err := svc.Generate(ctx, q.ID)
	require.NoError(t, err)

	_, err = f.votes.CastVote(ctx, models.VoteTargetAIAnswer, answer.ID, alice.ID, 1)
	require.NoError(t, err)
	res, err := f.votes.CastVote(ctx, models.VoteTargetAIAnswer, answer.ID, bob.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.VoteCount)

	var stored models.AIAnswer
	f.reload(&stored, answer.ID)
	assert.Equal(t, 1, stored.HelpfulVotes)
	assert.Equal(t, 1, stored.UnhelpfulVotes)

	// 再投同方向取消
	_, err = f.votes.CastVote(ctx, models.VoteTargetAIAnswer, answer.ID, alice.ID, 1)
	require.NoError(t, err)
	f.reload(&stored, answer.ID)
	assert.Equal(t, 0, stored.HelpfulVotes)
	assert.Equal(t, -1, stored.VoteCount)

	_, err = f.votes.CastVote(ctx, models.VoteTargetAIAnswer, 999, alice.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAIAnswerStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asker := f.user("asker")
	alice := f.user("alice")
	bob := f.user("bob")
	svc := NewAIAnswerService(f.db, &fakeGenerator{answer: "ok"}, f.locker, nil)

	empty, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, AIStats{}, *empty)

	q1 := f.questionBy(asker)
	q2 := f.questionBy(asker)
	first, _, err := svc.Generate(ctx, q1.ID)
	require.NoError(t, err)
	second, _, err := svc.Generate(ctx, q2.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(second).UpdateColumn("confidence", 0.9).Error)

	_, err = f.votes.CastVote(ctx, models.VoteTargetAIAnswer, first.ID, alice.ID, 1)
	require.NoError(t, err)
	_, err = f.votes.CastVote(ctx, models.VoteTargetAIAnswer, first.ID, bob.ID, 1)
	require.NoError(t, err)
	_, err = f.votes.CastVote(ctx, models.VoteTargetAIAnswer, second.ID, alice.ID, -1)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalAnswers)
	assert.InDelta(t, (first.Confidence+0.9)/2, stats.AverageConfidence, 1e-9)
	assert.Equal(t, int64(2), stats.TotalHelpfulVotes)
}
