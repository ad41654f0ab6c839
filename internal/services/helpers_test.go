package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stackit/internal/db/dbtest"
	"stackit/internal/lock"
	"stackit/internal/models"
	"stackit/internal/utils"
)

// recordingEmitter 记录所有通知，供断言使用
type recordingEmitter struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingEmitter) Emit(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingEmitter) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

func (r *recordingEmitter) ofType(t models.NotificationType) []Notice {
	var out []Notice
	for _, n := range r.all() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	t        *testing.T
	db       *gorm.DB
	locker   lock.Locker
	emitter  *recordingEmitter
	votes    *VoteLedger
	accept   *AcceptanceService
	comments *CommentService
	mod      *ModerationService
	answers  *AnswerService
	question *QuestionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	locker := lock.NewLocal()
	emitter := &recordingEmitter{}
	votes := NewVoteLedger(conn, locker, nil, nil)
	qs, err := NewQuestionService(conn, votes, emitter, nil, nil)
	require.NoError(t, err)

	return &fixture{
		t:        t,
		db:       conn,
		locker:   locker,
		emitter:  emitter,
		votes:    votes,
		accept:   NewAcceptanceService(conn, locker, emitter, nil, nil),
		comments: NewCommentService(conn, votes, emitter, nil, nil),
		mod:      NewModerationService(conn, nil),
		answers:  NewAnswerService(conn, locker, emitter, nil),
		question: qs,
	}
}

// resetViewCache 清空浏览去重的前置缓存，只留数据库记录
func (f *fixture) resetViewCache() {
	f.t.Helper()
	views, err := utils.NewTTLCache[bool](16)
	require.NoError(f.t, err)
	f.question.views = views
}

func (f *fixture) user(name string) *models.User {
	return f.userWithRole(name, models.RoleUser)
}

func (f *fixture) admin(name string) *models.User {
	return f.userWithRole(name, models.RoleAdmin)
}

func (f *fixture) userWithRole(name, role string) *models.User {
	f.t.Helper()
	u := &models.User{
		Username: name,
		Email:    name + "@example.com",
		Password: "hash",
		Role:     role,
	}
	require.NoError(f.t, f.db.Create(u).Error)
	return u
}

func (f *fixture) questionBy(author *models.User, tags ...string) *models.Question {
	f.t.Helper()
	if len(tags) == 0 {
		tags = []string{"go"}
	}
	title := fmt.Sprintf("How do I test question %d properly?", len(f.emitter.all())+int(author.ID))
	description := "<p>" + strings.Repeat("details ", 5) + "</p>"
	q, err := f.question.Create(context.Background(), author, QuestionInput{
		Title:       &title,
		Description: &description,
		Tags:        tags,
	})
	require.NoError(f.t, err)
	return q
}

func (f *fixture) answerBy(author *models.User, q *models.Question) *models.Answer {
	f.t.Helper()
	a := &models.Answer{
		Content:    "<p>" + strings.Repeat("answer ", 5) + "</p>",
		AuthorID:   author.ID,
		QuestionID: q.ID,
	}
	require.NoError(f.t, f.db.Create(a).Error)
	return a
}

func (f *fixture) commentBy(author *models.User, a *models.Answer, parent *models.Comment) *models.Comment {
	f.t.Helper()
	var parentID *uint
	if parent != nil {
		parentID = &parent.ID
	}
	c, err := f.comments.AddComment(context.Background(), a.ID, author, "a comment", parentID)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) reload(dst any, id uint) {
	f.t.Helper()
	require.NoError(f.t, f.db.First(dst, id).Error)
}

func intPtr(v int) *int {
	return &v
}
