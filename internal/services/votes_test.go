package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackit/internal/apperr"
	"stackit/internal/models"
)

func TestParseDirection(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"up", 1, false},
		{"UP", 1, false},
		{"1", 1, false},
		{"+1", 1, false},
		{"helpful", 1, false},
		{"down", -1, false},
		{"-1", -1, false},
		{"unhelpful", -1, false},
		{"", 0, true},
		{"0", 0, true},
		{"2", 0, true},
		{"sideways", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseDirection(tt.raw)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVoteTransition(t *testing.T) {
	next, delta := voteTransition(nil, 1)
	assert.Equal(t, intPtr(1), next)
	assert.Equal(t, 1, delta)

	next, delta = voteTransition(intPtr(1), 1)
	assert.Nil(t, next)
	assert.Equal(t, -1, delta)

	next, delta = voteTransition(intPtr(1), -1)
	assert.Equal(t, intPtr(-1), next)
	assert.Equal(t, -2, delta)

	next, delta = voteTransition(intPtr(-1), 1)
	assert.Equal(t, intPtr(1), next)
	assert.Equal(t, 2, delta)
}

func TestCastVoteUpDownToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.user("author")
	voter := f.user("voter")
	q := f.questionBy(author)
	a := f.answerBy(author, q)

	// 0 -> +1
	res, err := f.votes.CastVote(ctx, models.VoteTargetAnswer, a.ID, voter.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.VoteCount)
	assert.Equal(t, intPtr(1), res.UserVote)

	// +1 -> -1，净变化 -2
	res, err = f.votes.CastVote(ctx, models.VoteTargetAnswer, a.ID, voter.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, -1, res.VoteCount)
	assert.Equal(t, intPtr(-1), res.UserVote)
	assert.Equal(t, 0, res.UpVotes)
	assert.Equal(t, 1, res.DownVotes)

	// -1 再点一次 -> 撤销
	res, err = f.votes.CastVote(ctx, models.VoteTargetAnswer, a.ID, voter.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.VoteCount)
	assert.Nil(t, res.UserVote)

	var stored models.Answer
	f.reload(&stored, a.ID)
	assert.Equal(t, 0, stored.VoteCount)

	var count int64
	f.db.Model(&models.Vote{}).Where("target_type = ? AND target_id = ?", models.VoteTargetAnswer, a.ID).Count(&count)
	assert.Zero(t, count)
}

func TestCastVoteEveryTargetType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.user("author")
	voter := f.user("voter")
	q := f.questionBy(author)
	a := f.answerBy(author, q)
	c := f.commentBy(author, a, nil)
	ai := models.AIAnswer{QuestionID: q.ID, Content: "x", ContentHTML: "<p>x</p>"}
	require.NoError(t, f.db.Create(&ai).Error)

	targets := map[models.VoteTarget]uint{
		models.VoteTargetQuestion: q.ID,
		models.VoteTargetAnswer:   a.ID,
		models.VoteTargetComment:  c.ID,
		models.VoteTargetAIAnswer: ai.ID,
	}
	for target, id := range targets {
		res, err := f.votes.CastVote(ctx, target, id, voter.ID, 1)
		require.NoError(t, err, target)
		assert.Equal(t, 1, res.VoteCount, target)
	}

	var storedQ models.Question
	f.reload(&storedQ, q.ID)
	assert.Equal(t, 1, storedQ.VoteCount)

	var storedC models.Comment
	f.reload(&storedC, c.ID)
	assert.Equal(t, 1, storedC.VoteCount)

	var storedAI models.AIAnswer
	f.reload(&storedAI, ai.ID)
	assert.Equal(t, 1, storedAI.VoteCount)
	assert.Equal(t, 1, storedAI.HelpfulVotes)
	assert.Equal(t, 0, storedAI.UnhelpfulVotes)
}

func TestCastVoteRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	voter := f.user("voter")

	_, err := f.votes.CastVote(ctx, models.VoteTarget("post"), 1, voter.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = f.votes.CastVote(ctx, models.VoteTargetAnswer, 1, voter.ID, 0)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = f.votes.CastVote(ctx, models.VoteTargetAnswer, 999, voter.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCastVoteSumsAcrossUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.user("author")
	q := f.questionBy(author)

	for i, v := range []int{1, 1, 1, -1} {
		u := f.user(fmt.Sprintf("voter%d", i))
		_, err := f.votes.CastVote(ctx, models.VoteTargetQuestion, q.ID, u.ID, v)
		require.NoError(t, err)
	}

	var stored models.Question
	f.reload(&stored, q.ID)
	assert.Equal(t, 2, stored.VoteCount)
}

// 不加保护的读-改-写：两个请求读到同一个快照，各自 +1 后写回，丢失一次更新
func TestUnguardedReadModifyWriteLosesUpdates(t *testing.T) {
	stored := 0
	snapshotA, snapshotB := stored, stored

	_, deltaA := voteTransition(nil, 1)
	_, deltaB := voteTransition(nil, 1)

	stored = snapshotA + deltaA
	stored = snapshotB + deltaB

	assert.Equal(t, 1, stored, "second write overwrote the first")
	assert.NotEqual(t, 2, stored)
}

func TestConcurrentCastVoteKeepsInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.user("author")
	q := f.questionBy(author)
	a := f.answerBy(author, q)

	const voters = 12
	users := make([]*models.User, voters)
	for i := range users {
		users[i] = f.user(fmt.Sprintf("voter%d", i))
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			value := 1
			if i%3 == 0 {
				value = -1
			}
			_, err := f.votes.CastVote(ctx, models.VoteTargetAnswer, a.ID, u.ID, value)
			assert.NoError(t, err)
		}(i, u)
	}
	wg.Wait()

	var stored models.Answer
	f.reload(&stored, a.ID)

	var sum struct{ Total int }
	f.db.Model(&models.Vote{}).Select("COALESCE(SUM(value), 0) AS total").
		Where("target_type = ? AND target_id = ?", models.VoteTargetAnswer, a.ID).Scan(&sum)

	assert.Equal(t, sum.Total, stored.VoteCount)
	assert.Equal(t, 8-4, stored.VoteCount)
}

func TestCastVotePropertyCountEqualsSum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.user("author")
	q := f.questionBy(author)

	users := make([]*models.User, 4)
	for i := range users {
		users[i] = f.user(fmt.Sprintf("p%d", i))
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("vote_count equals sum of votes and one vote per user", prop.ForAll(
		func(steps []int) bool {
			a := f.answerBy(author, q)
			expected := map[uint]int{}
			for _, step := range steps {
				user := users[(step/2)%len(users)]
				value := 1
				if step%2 == 1 {
					value = -1
				}
				res, err := f.votes.CastVote(ctx, models.VoteTargetAnswer, a.ID, user.ID, value)
				if err != nil {
					return false
				}
				next, _ := voteTransition(optionalVote(expected, user.ID), value)
				if next == nil {
					delete(expected, user.ID)
				} else {
					expected[user.ID] = *next
				}
				if (res.UserVote == nil) != (next == nil) {
					return false
				}
			}

			var stored models.Answer
			if err := f.db.First(&stored, a.ID).Error; err != nil {
				return false
			}
			want := 0
			for _, v := range expected {
				want += v
			}

			var perUser []struct {
				UserID uint
				N      int
			}
			f.db.Model(&models.Vote{}).Select("user_id, COUNT(*) AS n").
				Where("target_type = ? AND target_id = ?", models.VoteTargetAnswer, a.ID).
				Group("user_id").Scan(&perUser)
			for _, row := range perUser {
				if row.N > 1 {
					return false
				}
			}
			return stored.VoteCount == want && len(perUser) == len(expected)
		},
		gen.SliceOfN(12, gen.IntRange(0, 7)),
	))

	properties.TestingRun(t)
}

func optionalVote(m map[uint]int, userID uint) *int {
	if v, ok := m[userID]; ok {
		return &v
	}
	return nil
}

func TestUserVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.user("author")
	voter := f.user("voter")
	q := f.questionBy(author)
	a1 := f.answerBy(author, q)
	a2 := f.answerBy(author, q)

	_, err := f.votes.CastVote(ctx, models.VoteTargetAnswer, a1.ID, voter.ID, -1)
	require.NoError(t, err)

	got, err := f.votes.UserVotes(ctx, models.VoteTargetAnswer, voter.ID, []uint{a1.ID, a2.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uint]int{a1.ID: -1}, got)

	empty, err := f.votes.UserVotes(ctx, models.VoteTargetAnswer, 0, []uint{a1.ID})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReconcileRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.user("author")
	voter := f.user("voter")
	q := f.questionBy(author)
	a := f.answerBy(author, q)
	ai := models.AIAnswer{QuestionID: q.ID, Content: "x", ContentHTML: "x"}
	require.NoError(t, f.db.Create(&ai).Error)

	_, err := f.votes.CastVote(ctx, models.VoteTargetAnswer, a.ID, voter.ID, 1)
	require.NoError(t, err)
	_, err = f.votes.CastVote(ctx, models.VoteTargetAIAnswer, ai.ID, voter.ID, -1)
	require.NoError(t, err)

	// 人为制造不一致
	require.NoError(t, f.db.Model(&models.Answer{}).Where("id = ?", a.ID).UpdateColumn("vote_count", 42).Error)
	require.NoError(t, f.db.Model(&models.Question{}).Where("id = ?", q.ID).UpdateColumn("vote_count", -3).Error)
	require.NoError(t, f.db.Model(&models.AIAnswer{}).Where("id = ?", ai.ID).UpdateColumn("unhelpful_votes", 9).Error)

	fixed, err := f.votes.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, fixed)

	var storedA models.Answer
	f.reload(&storedA, a.ID)
	assert.Equal(t, 1, storedA.VoteCount)

	var storedQ models.Question
	f.reload(&storedQ, q.ID)
	assert.Equal(t, 0, storedQ.VoteCount)

	var storedAI models.AIAnswer
	f.reload(&storedAI, ai.ID)
	assert.Equal(t, 1, storedAI.UnhelpfulVotes)
	assert.Equal(t, -1, storedAI.VoteCount)

	again, err := f.votes.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}
