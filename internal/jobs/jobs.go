// Package jobs 定时任务：票数对账、浏览记录清理
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"stackit/internal/config"
	"stackit/internal/metrics"
)

const jobTimeout = 5 * time.Minute

// VoteReconciler 由 services.VoteLedger 实现
type VoteReconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ViewPruner 由 services.QuestionService 实现
type ViewPruner interface {
	PruneViews(ctx context.Context) (int64, error)
}

// ReconcileVotesJob 重新计算偏离投票记录的 vote_count
type ReconcileVotesJob struct {
	votes   VoteReconciler
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewReconcileVotesJob(votes VoteReconciler, m *metrics.Metrics, logger *zap.Logger) *ReconcileVotesJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileVotesJob{votes: votes, metrics: m, logger: logger}
}

// Run 实现 cron.Job
func (j *ReconcileVotesJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	j.logger.Info("Starting vote reconciliation")
	fixed, err := j.votes.Reconcile(ctx)
	j.metrics.RecordJobRun("reconcile_votes", err)
	if err != nil {
		j.logger.Error("Vote reconciliation failed", zap.Error(err))
		return
	}
	j.metrics.AddVoteCountsReconciled(fixed)
	if fixed > 0 {
		// 正常情况下不应出现漂移
		j.logger.Warn("Vote counts drifted and were repaired", zap.Int("rows", fixed))
		return
	}
	j.logger.Info("Vote reconciliation completed, no drift")
}

// PruneViewsJob 删除 24 小时窗口外的浏览记录
type PruneViewsJob struct {
	views   ViewPruner
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewPruneViewsJob(views ViewPruner, m *metrics.Metrics, logger *zap.Logger) *PruneViewsJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PruneViewsJob{views: views, metrics: m, logger: logger}
}

func (j *PruneViewsJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	pruned, err := j.views.PruneViews(ctx)
	j.metrics.RecordJobRun("prune_views", err)
	if err != nil {
		j.logger.Error("Failed to prune question views", zap.Error(err))
		return
	}
	j.logger.Info("Pruned expired question views", zap.Int64("count", pruned))
}

// Scheduler 包装 cron，任务 panic 时恢复并记录
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func NewScheduler(cfg config.JobsConfig, votes VoteReconciler, views ViewPruner, m *metrics.Metrics, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{logger})))

	entries := []struct {
		name string
		spec string
		job  cron.Job
	}{
		{"reconcile_votes", cfg.ReconcileVotesSpec, NewReconcileVotesJob(votes, m, logger)},
		{"prune_views", cfg.PruneViewsSpec, NewPruneViewsJob(views, m, logger)},
	}
	for _, e := range entries {
		if e.spec == "" || e.spec == "off" {
			logger.Info("job disabled", zap.String("job", e.name))
			continue
		}
		if _, err := c.AddJob(e.spec, e.job); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", e.name, e.spec, err)
		}
		logger.Info("job scheduled", zap.String("job", e.name), zap.String("spec", e.spec))
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 等待正在运行的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("timed out waiting for running jobs")
	}
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// cronLogger 把 cron 的日志接到 zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
