package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stackit/internal/db"
	"stackit/internal/db/dbtest"
	"stackit/internal/models"
)

func TestMigrateEnforcesSingleAcceptedAnswer(t *testing.T) {
	conn := dbtest.Open(t)

	author := models.User{Username: "asker", Email: "asker@example.com", Password: "x"}
	require.NoError(t, conn.Create(&author).Error)
	question := models.Question{Title: "How do I test indexes?", Description: "Some long enough description", AuthorID: author.ID}
	require.NoError(t, conn.Create(&question).Error)

	first := models.Answer{Content: "first answer with enough text", AuthorID: author.ID, QuestionID: question.ID, IsAccepted: true}
	require.NoError(t, conn.Create(&first).Error)

	second := models.Answer{Content: "second answer with enough text", AuthorID: author.ID, QuestionID: question.ID, IsAccepted: true}
	err := conn.Create(&second).Error
	assert.Error(t, err, "a second accepted answer under the same question must be rejected")

	// 未采纳的回答不受影响
	third := models.Answer{Content: "third answer with enough text", AuthorID: author.ID, QuestionID: question.ID}
	assert.NoError(t, conn.Create(&third).Error)
}

func TestMigrateEnforcesOneVotePerUser(t *testing.T) {
	conn := dbtest.Open(t)

	vote := models.Vote{TargetType: models.VoteTargetAnswer, TargetID: 1, UserID: 7, Value: 1}
	require.NoError(t, conn.Create(&vote).Error)

	dup := models.Vote{TargetType: models.VoteTargetAnswer, TargetID: 1, UserID: 7, Value: -1}
	assert.Error(t, conn.Create(&dup).Error)

	// 同一用户对不同类型的同 id 实体可以分别投票
	other := models.Vote{TargetType: models.VoteTargetComment, TargetID: 1, UserID: 7, Value: -1}
	assert.NoError(t, conn.Create(&other).Error)
}

func TestSeedTagsIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)

	db.SeedTags(conn, zap.NewNop())
	db.SeedTags(conn, zap.NewNop())

	var count int64
	conn.Model(&models.Tag{}).Count(&count)
	assert.Equal(t, int64(8), count)
}
