package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/apperr"
	"stackit/internal/metrics"
	"stackit/internal/models"
)

// Notice 一条待投递的通知
type Notice struct {
	RecipientID uint
	ActorID     *uint
	Type        models.NotificationType
	QuestionID  *uint
	AnswerID    *uint
	Message     string
}

// Emitter 发通知不返回错误，失败只记日志，不影响主流程
type Emitter interface {
	Emit(ctx context.Context, n Notice)
}

// NopEmitter 丢弃所有通知
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Notice) {}

// notify 不要通知自己
func notify(ctx context.Context, e Emitter, n Notice) {
	if e == nil || n.RecipientID == 0 {
		return
	}
	if n.ActorID != nil && *n.ActorID == n.RecipientID {
		return
	}
	e.Emit(ctx, n)
}

// Mailer 邮件通道，可选
type Mailer interface {
	SendNotification(to string, n models.Notification) error
}

// AsyncEmitter 队列 + 后台 worker：落库，必要时发邮件
type AsyncEmitter struct {
	db      *gorm.DB
	mailer  Mailer
	metrics *metrics.Metrics
	logger  *zap.Logger

	queue  chan Notice
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func NewAsyncEmitter(db *gorm.DB, mailer Mailer, m *metrics.Metrics, logger *zap.Logger, size int) *AsyncEmitter {
	if size <= 0 {
		size = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &AsyncEmitter{
		db:      db,
		mailer:  mailer,
		metrics: m,
		logger:  logger,
		queue:   make(chan Notice, size), // 缓冲队列，防止阻塞请求
		done:    make(chan struct{}),
	}
	go e.worker()
	return e
}

// Emit 非阻塞入队，队列满了直接丢弃
func (e *AsyncEmitter) Emit(_ context.Context, n Notice) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.queue <- n:
		e.metrics.SetNotificationQueueDepth(len(e.queue))
	default:
		e.metrics.RecordNotification(string(n.Type), "dropped")
		e.logger.Warn("notification queue full, dropping",
			zap.String("type", string(n.Type)),
			zap.Uint("recipient_id", n.RecipientID),
		)
	}
}

// Close 停止接收并等待队列里剩余的通知处理完
func (e *AsyncEmitter) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()
	<-e.done
}

func (e *AsyncEmitter) worker() {
	defer close(e.done)
	for n := range e.queue {
		e.metrics.SetNotificationQueueDepth(len(e.queue))
		e.deliver(n)
	}
}

func (e *AsyncEmitter) deliver(n Notice) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordNotification(string(n.Type), "error")
			e.logger.Error("notification delivery panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record := models.Notification{
		RecipientID: n.RecipientID,
		ActorID:     n.ActorID,
		Type:        n.Type,
		QuestionID:  n.QuestionID,
		AnswerID:    n.AnswerID,
		Message:     n.Message,
	}
	if err := e.db.WithContext(ctx).Create(&record).Error; err != nil {
		e.metrics.RecordNotification(string(n.Type), "error")
		e.logger.Error("failed to store notification",
			zap.String("type", string(n.Type)),
			zap.Uint("recipient_id", n.RecipientID),
			zap.Error(err),
		)
		return
	}
	e.metrics.RecordNotification(string(n.Type), "stored")

	if e.mailer == nil || (n.Type != models.NotificationTypeAnswer && n.Type != models.NotificationTypeAccept) {
		return
	}
	var recipient models.User
	if err := e.db.WithContext(ctx).Select("id", "email").First(&recipient, n.RecipientID).Error; err != nil {
		e.logger.Warn("notification recipient not found for mail", zap.Uint("recipient_id", n.RecipientID), zap.Error(err))
		return
	}
	if err := e.mailer.SendNotification(recipient.Email, record); err != nil {
		e.metrics.RecordNotification(string(n.Type), "mail_error")
		e.logger.Warn("failed to send notification mail", zap.Uint("recipient_id", n.RecipientID), zap.Error(err))
		return
	}
	e.metrics.RecordNotification(string(n.Type), "mailed")
}

// NotificationService 通知的查询与已读管理
type NotificationService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewNotificationService(db *gorm.DB, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{db: db, logger: logger}
}

// List 按时间倒序分页
func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]models.Notification, int64, error) {
	offset, size := Page(page, limit)
	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", userID)
		if unreadOnly {
			q = q.Where("is_read = ?", false)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	var items []models.Notification
	err := query().Preload("Actor").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(size).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, notFound(err, "Notification")
	}
	if n.RecipientID != userID {
		return nil, apperr.Forbidden("Not authorized to update this notification")
	}
	if !n.Read {
		if err := s.db.WithContext(ctx).Model(&n).Update("is_read", true).Error; err != nil {
			return nil, fmt.Errorf("mark notification read: %w", err)
		}
		n.Read = true
	}
	return &n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// Announce 管理员公告，发给所有未封禁用户，返回发送数量
func (s *NotificationService) Announce(ctx context.Context, actor *models.User, message string) (int, error) {
	if actor == nil {
		return 0, apperr.Unauthorized("Not authorized")
	}
	if err := RequireAdmin(actor.Role); err != nil {
		return 0, err
	}
	if message == "" {
		return 0, apperr.InvalidInput("Announcement message is required")
	}

	var recipients []uint
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("is_banned = ? AND id <> ?", false, actor.ID).
		Pluck("id", &recipients).Error; err != nil {
		return 0, fmt.Errorf("load announcement recipients: %w", err)
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	items := make([]models.Notification, 0, len(recipients))
	for _, id := range recipients {
		items = append(items, models.Notification{
			RecipientID: id,
			ActorID:     uintPtr(actor.ID),
			Type:        models.NotificationTypeAnnouncement,
			Message:     message,
		})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(items, 200).Error; err != nil {
		return 0, fmt.Errorf("create announcements: %w", err)
	}
	s.logger.Info("announcement sent", zap.Uint("admin_id", actor.ID), zap.Int("recipients", len(items)))
	return len(items), nil
}
