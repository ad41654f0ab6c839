package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/apperr"
	"stackit/internal/lock"
	"stackit/internal/metrics"
	"stackit/internal/models"
)

// 每种投票对象对应的表
var voteTables = map[models.VoteTarget]string{
	models.VoteTargetQuestion: "questions",
	models.VoteTargetAnswer:   "answers",
	models.VoteTargetComment:  "comments",
	models.VoteTargetAIAnswer: "ai_answers",
}

// ParseDirection 把 up/down、1/-1、helpful/unhelpful 统一成 +1 / -1
func ParseDirection(raw string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "up", "1", "+1", "helpful":
		return 1, nil
	case "down", "-1", "unhelpful":
		return -1, nil
	}
	return 0, apperr.InvalidInput("Invalid vote direction")
}

// VoteResult 投票后的最新状态，UserVote 为 nil 表示当前用户没有投票
type VoteResult struct {
	VoteCount int  `json:"voteCount"`
	UpVotes   int  `json:"upVotes"`
	DownVotes int  `json:"downVotes"`
	UserVote  *int `json:"userVote"`
}

// voteTransition 根据用户之前的投票决定下一状态：
// 没投过则新增，同向则撤销，反向则改票。delta 为对总分的净影响。
func voteTransition(prior *int, value int) (next *int, delta int) {
	switch {
	case prior == nil:
		v := value
		return &v, value
	case *prior == value:
		return nil, -value
	default:
		v := value
		return &v, 2 * value
	}
}

type VoteLedger struct {
	db      *gorm.DB
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewVoteLedger(db *gorm.DB, locker lock.Locker, m *metrics.Metrics, logger *zap.Logger) *VoteLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoteLedger{db: db, locker: locker, metrics: m, logger: logger}
}

// CastVote 投票、撤销或改票，写完后按投票记录重新求和
func (l *VoteLedger) CastVote(ctx context.Context, target models.VoteTarget, targetID, userID uint, value int) (*VoteResult, error) {
	table, ok := voteTables[target]
	if !ok {
		return nil, apperr.InvalidInput("Invalid vote target")
	}
	if value != 1 && value != -1 {
		return nil, apperr.InvalidInput("Invalid vote direction")
	}

	unlock, err := l.locker.Lock(ctx, voteLockKey(target, targetID))
	if err != nil {
		return nil, fmt.Errorf("acquire vote lock: %w", err)
	}
	defer unlock()

	var (
		result  VoteResult
		outcome string
	)
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁住目标行，顺便确认存在
		var ids []uint
		if err := forUpdate(tx).Table(table).Where("id = ?", targetID).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("load vote target: %w", err)
		}
		if len(ids) == 0 {
			return apperr.NotFound("%s not found", targetLabel(target))
		}

		var existing models.Vote
		res := tx.Where("target_type = ? AND target_id = ? AND user_id = ?", target, targetID, userID).
			Limit(1).Find(&existing)
		if res.Error != nil {
			return fmt.Errorf("load vote: %w", res.Error)
		}

		var prior *int
		if res.RowsAffected > 0 {
			prior = &existing.Value
		}
		next, _ := voteTransition(prior, value)

		switch {
		case prior == nil:
			vote := models.Vote{TargetType: target, TargetID: targetID, UserID: userID, Value: value}
			if err := tx.Create(&vote).Error; err != nil {
				return err
			}
			outcome = "added"
		case next == nil:
			if err := tx.Delete(&existing).Error; err != nil {
				return fmt.Errorf("delete vote: %w", err)
			}
			outcome = "removed"
		default:
			if err := tx.Model(&existing).Update("value", value).Error; err != nil {
				return fmt.Errorf("update vote: %w", err)
			}
			outcome = "changed"
		}

		up, down, err := recomputeVotes(tx, target, targetID)
		if err != nil {
			return err
		}
		result = VoteResult{VoteCount: up - down, UpVotes: up, DownVotes: down, UserVote: next}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			l.metrics.RecordVote(string(target), "conflict")
			return nil, apperr.Conflict("Vote already recorded, please retry")
		}
		return nil, err
	}

	l.metrics.RecordVote(string(target), outcome)
	l.logger.Debug("vote cast",
		zap.String("target", string(target)),
		zap.Uint("target_id", targetID),
		zap.Uint("user_id", userID),
		zap.String("outcome", outcome),
		zap.Int("vote_count", result.VoteCount),
	)
	return &result, nil
}

type voteTally struct {
	Up   int
	Down int
}

// recomputeVotes 按当前投票记录重新统计并回写冗余计数
func recomputeVotes(tx *gorm.DB, target models.VoteTarget, targetID uint) (up, down int, err error) {
	var t voteTally
	err = tx.Model(&models.Vote{}).
		Select("COALESCE(SUM(CASE WHEN value > 0 THEN 1 ELSE 0 END), 0) AS up, "+
			"COALESCE(SUM(CASE WHEN value < 0 THEN 1 ELSE 0 END), 0) AS down").
		Where("target_type = ? AND target_id = ?", target, targetID).
		Scan(&t).Error
	if err != nil {
		return 0, 0, fmt.Errorf("sum votes: %w", err)
	}

	updates := map[string]any{"vote_count": t.Up - t.Down}
	if target == models.VoteTargetAIAnswer {
		updates["helpful_votes"] = t.Up
		updates["unhelpful_votes"] = t.Down
	}
	if err := tx.Table(voteTables[target]).Where("id = ?", targetID).UpdateColumns(updates).Error; err != nil {
		return 0, 0, fmt.Errorf("update vote count: %w", err)
	}
	return t.Up, t.Down, nil
}

// UserVotes 返回用户在一批对象上的当前投票，key 为对象 ID
func (l *VoteLedger) UserVotes(ctx context.Context, target models.VoteTarget, userID uint, ids []uint) (map[uint]int, error) {
	out := make(map[uint]int, len(ids))
	if userID == 0 || len(ids) == 0 {
		return out, nil
	}
	var votes []models.Vote
	err := l.db.WithContext(ctx).
		Where("target_type = ? AND user_id = ? AND target_id IN ?", target, userID, ids).
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("load user votes: %w", err)
	}
	for _, v := range votes {
		out[v.TargetID] = v.Value
	}
	return out, nil
}

// Reconcile 修正与投票记录不一致的冗余计数，返回修正的行数
func (l *VoteLedger) Reconcile(ctx context.Context) (int, error) {
	total := 0
	for target, table := range voteTables {
		sum := fmt.Sprintf("COALESCE((SELECT SUM(v.value) FROM votes v WHERE v.target_type = ? AND v.target_id = %s.id), 0)", table)
		res := l.db.WithContext(ctx).Exec(
			fmt.Sprintf("UPDATE %s SET vote_count = %s WHERE vote_count <> %s", table, sum, sum),
			target, target,
		)
		if res.Error != nil {
			return total, fmt.Errorf("reconcile %s: %w", table, res.Error)
		}
		total += int(res.RowsAffected)
	}

	// AI 回答另外维护 helpful / unhelpful 计数
	count := func(sign string) string {
		return "COALESCE((SELECT COUNT(*) FROM votes v WHERE v.target_type = ? AND v.target_id = ai_answers.id AND v.value " + sign + " 0), 0)"
	}
	res := l.db.WithContext(ctx).Exec(
		"UPDATE ai_answers SET helpful_votes = "+count(">")+", unhelpful_votes = "+count("<")+
			" WHERE helpful_votes <> "+count(">")+" OR unhelpful_votes <> "+count("<"),
		models.VoteTargetAIAnswer, models.VoteTargetAIAnswer, models.VoteTargetAIAnswer, models.VoteTargetAIAnswer,
	)
	if res.Error != nil {
		return total, fmt.Errorf("reconcile ai_answers: %w", res.Error)
	}
	total += int(res.RowsAffected)

	if total > 0 {
		l.logger.Info("vote counts reconciled", zap.Int("rows", total))
	}
	l.metrics.AddVoteCountsReconciled(total)
	return total, nil
}

// deleteVotes 删除一批对象上的投票，供级联删除使用
func deleteVotes(tx *gorm.DB, target models.VoteTarget, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("target_type = ? AND target_id IN ?", target, ids).Delete(&models.Vote{}).Error; err != nil {
		return fmt.Errorf("delete %s votes: %w", target, err)
	}
	return nil
}

func targetLabel(target models.VoteTarget) string {
	switch target {
	case models.VoteTargetQuestion:
		return "Question"
	case models.VoteTargetAnswer:
		return "Answer"
	case models.VoteTargetComment:
		return "Comment"
	case models.VoteTargetAIAnswer:
		return "AI answer"
	}
	return "Item"
}
