package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/apperr"
	"stackit/internal/metrics"
	"stackit/internal/models"
	"stackit/internal/utils"
)

const maxCommentLength = 1000

// CommentNode 评论树的一个节点
type CommentNode struct {
	models.Comment
	UserVote *int           `json:"user_vote"`
	Replies  []*CommentNode `json:"replies"`
}

// CommentService 评论按 parent_id 组织成树，删除是软删除
type CommentService struct {
	db      *gorm.DB
	votes   *VoteLedger
	emitter Emitter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewCommentService(db *gorm.DB, votes *VoteLedger, emitter Emitter, m *metrics.Metrics, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{db: db, votes: votes, emitter: emitter, metrics: m, logger: logger}
}

func normalizeCommentContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return "", apperr.InvalidInput("Comment content is required")
	}
	if n > maxCommentLength {
		return "", apperr.InvalidInput("Comment cannot exceed %d characters", maxCommentLength)
	}
	// 占位符保留给软删除
	if strings.EqualFold(content, models.DeletedCommentContent) {
		return "", apperr.InvalidInput("Comment content is not allowed")
	}
	return content, nil
}

// AddComment 新增评论；parentID 不为空时是回复，父评论必须属于同一个回答
func (s *CommentService) AddComment(ctx context.Context, answerID uint, author *models.User, content string, parentID *uint) (*models.Comment, error) {
	if author == nil {
		return nil, apperr.Unauthorized("Not authorized")
	}
	content, err := normalizeCommentContent(content)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var answer models.Answer
	if err := db.First(&answer, answerID).Error; err != nil {
		return nil, notFound(err, "Answer")
	}

	var parent *models.Comment
	if parentID != nil {
		parent = &models.Comment{}
		if err := db.First(parent, *parentID).Error; err != nil {
			return nil, notFound(err, "Parent comment")
		}
		if parent.AnswerID != answer.ID {
			return nil, apperr.Conflict("Parent comment belongs to a different answer")
		}
	}

	comment := models.Comment{
		Content:  content,
		AuthorID: author.ID,
		AnswerID: answer.ID,
		ParentID: parentID,
	}
	if err := db.Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	comment.Author = *author
	s.metrics.RecordComment("create")

	recipient := answer.AuthorID
	message := fmt.Sprintf("%s commented on your answer", author.Username)
	if parent != nil {
		recipient = parent.AuthorID
		message = fmt.Sprintf("%s replied to your comment", author.Username)
	}
	notify(ctx, s.emitter, Notice{
		RecipientID: recipient,
		ActorID:     uintPtr(author.ID),
		Type:        models.NotificationTypeComment,
		QuestionID:  uintPtr(answer.QuestionID),
		AnswerID:    uintPtr(answer.ID),
		Message:     message,
	})
	notifyMentions(ctx, s.db, s.emitter, author, content, answer.QuestionID, &answer.ID, recipient)

	return &comment, nil
}

// UpdateComment 作者或管理员可编辑，已删除的评论不能再编辑
func (s *CommentService) UpdateComment(ctx context.Context, commentID uint, actor *models.User, content string) (*models.Comment, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("Not authorized")
	}
	content, err := normalizeCommentContent(content)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var comment models.Comment
	if err := db.Preload("Author").First(&comment, commentID).Error; err != nil {
		return nil, notFound(err, "Comment")
	}
	if comment.AuthorID != actor.ID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("Not authorized to update this comment")
	}
	if comment.IsDeleted {
		return nil, apperr.Conflict("Deleted comments cannot be edited")
	}

	if err := db.Model(&comment).Update("content", content).Error; err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	comment.Content = content
	s.metrics.RecordComment("update")
	return &comment, nil
}

// SoftDelete 只替换内容并打标记，父子关系不动，重复删除无副作用
func (s *CommentService) SoftDelete(ctx context.Context, commentID uint, actor *models.User) (*models.Comment, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("Not authorized")
	}

	db := s.db.WithContext(ctx)
	var comment models.Comment
	if err := db.First(&comment, commentID).Error; err != nil {
		return nil, notFound(err, "Comment")
	}
	if comment.AuthorID != actor.ID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("Not authorized to delete this comment")
	}
	if comment.IsDeleted {
		return &comment, nil
	}

	now := time.Now().UTC()
	err := db.Model(&comment).Updates(map[string]any{
		"is_deleted": true,
		"deleted_at": now,
		"content":    models.DeletedCommentContent,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("soft delete comment: %w", err)
	}
	comment.IsDeleted = true
	comment.DeletedAt = &now
	comment.Content = models.DeletedCommentContent

	s.metrics.RecordComment("delete")
	s.logger.Info("comment deleted",
		zap.Uint("comment_id", comment.ID),
		zap.Uint("actor_id", actor.ID),
	)
	return &comment, nil
}

// Thread 把回答下的评论组装成树。已删除且没有存活后代的节点会被剪掉。
func (s *CommentService) Thread(ctx context.Context, answerID, viewerID uint) ([]*CommentNode, error) {
	db := s.db.WithContext(ctx)
	var exists int64
	if err := db.Model(&models.Answer{}).Where("id = ?", answerID).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("load answer: %w", err)
	}
	if exists == 0 {
		return nil, apperr.NotFound("Answer not found")
	}

	var rows []models.Comment
	if err := db.Preload("Author").
		Where("answer_id = ?", answerID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}

	var userVotes map[uint]int
	if viewerID != 0 && len(rows) > 0 {
		ids := make([]uint, len(rows))
		for i, c := range rows {
			ids[i] = c.ID
		}
		var err error
		userVotes, err = s.votes.UserVotes(ctx, models.VoteTargetComment, viewerID, ids)
		if err != nil {
			return nil, err
		}
	}

	return BuildCommentTree(rows, userVotes), nil
}

// BuildCommentTree 邻接表 -> 嵌套树，兄弟节点按 id 升序。
// 父节点缺失的评论挂到顶层，避免丢数据。
func BuildCommentTree(rows []models.Comment, userVotes map[uint]int) []*CommentNode {
	nodes := make(map[uint]*CommentNode, len(rows))
	order := make([]*CommentNode, 0, len(rows))
	for i := range rows {
		n := &CommentNode{Comment: rows[i], Replies: []*CommentNode{}}
		if v, ok := userVotes[rows[i].ID]; ok {
			vote := v
			n.UserVote = &vote
		}
		if n.IsDeleted {
			n.Content = models.DeletedCommentContent
		}
		nodes[n.ID] = n
		order = append(order, n)
	}

	roots := make([]*CommentNode, 0)
	for _, n := range order {
		if n.ParentID != nil {
			if parent, ok := nodes[*n.ParentID]; ok && parent.ID != n.ID {
				parent.Replies = append(parent.Replies, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return pruneDeleted(roots)
}

func pruneDeleted(nodes []*CommentNode) []*CommentNode {
	kept := nodes[:0]
	for _, n := range nodes {
		n.Replies = pruneDeleted(n.Replies)
		if n.IsDeleted && len(n.Replies) == 0 {
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

// notifyMentions 给正文里 @ 到的用户发 mention 通知，跳过已经收到其他通知的 skip 用户
func notifyMentions(ctx context.Context, db *gorm.DB, emitter Emitter, actor *models.User, content string, questionID uint, answerID *uint, skip uint) {
	names := utils.ExtractMentions(content)
	if len(names) == 0 {
		return
	}
	var users []models.User
	if err := db.WithContext(ctx).Select("id", "username").Where("username IN ?", names).Find(&users).Error; err != nil {
		return
	}
	for _, u := range users {
		if u.ID == skip {
			continue
		}
		notify(ctx, emitter, Notice{
			RecipientID: u.ID,
			ActorID:     uintPtr(actor.ID),
			Type:        models.NotificationTypeMention,
			QuestionID:  uintPtr(questionID),
			AnswerID:    answerID,
			Message:     fmt.Sprintf("%s mentioned you", actor.Username),
		})
	}
}
