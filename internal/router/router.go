package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/handlers"
	"stackit/internal/lock"
	"stackit/internal/metrics"
	"stackit/internal/middleware"
	"stackit/internal/models"
	"stackit/internal/ratelimit"
	"stackit/internal/services"
)

const sessionName = "stackit_session"

// Config 组装路由所需的依赖
type Config struct {
	DB             *gorm.DB
	Logger         *zap.Logger
	Locker         lock.Locker
	Emitter        services.Emitter
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Generator      services.Generator // nil 时 AI 回答不可用
	RateLimiter    ratelimit.Limiter  // nil 时不限流
	SessionSecret  string
	SecureCookie   bool
	CORSOrigin     string
	RequestTimeout time.Duration
}

// App 路由和定时任务需要用到的服务
type App struct {
	Engine    *gin.Engine
	Votes     *services.VoteLedger
	Questions *services.QuestionService
}

// Setup 创建服务、处理器并注册全部路由
func Setup(cfg Config) (*App, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = services.NopEmitter{}
	}
	log := cfg.Logger

	votes := services.NewVoteLedger(cfg.DB, cfg.Locker, cfg.Metrics, log)
	questions, err := services.NewQuestionService(cfg.DB, votes, cfg.Emitter, cfg.Metrics, log)
	if err != nil {
		return nil, fmt.Errorf("create question service: %w", err)
	}
	accept := services.NewAcceptanceService(cfg.DB, cfg.Locker, cfg.Emitter, cfg.Metrics, log)
	answers := services.NewAnswerService(cfg.DB, cfg.Locker, cfg.Emitter, log)
	comments := services.NewCommentService(cfg.DB, votes, cfg.Emitter, cfg.Metrics, log)
	mod := services.NewModerationService(cfg.DB, log)
	notifications := services.NewNotificationService(cfg.DB, log)
	auth := services.NewAuthService(cfg.DB, log)
	users := services.NewUserService(cfg.DB, log)
	ai := services.NewAIAnswerService(cfg.DB, cfg.Generator, cfg.Locker, log)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Metrics(cfg.Metrics))
	if cfg.CORSOrigin != "" {
		r.Use(middleware.CORS(cfg.CORSOrigin))
	}
	r.Use(middleware.RateLimit(cfg.RateLimiter, log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 3600,
		HttpOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(middleware.LoadUser(auth))

	r.GET("/ready", func(c *gin.Context) {
		sqlDB, err := cfg.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	RegisterRoutes(r, Handlers{
		Auth:         handlers.NewAuthHandler(auth, log),
		Question:     handlers.NewQuestionHandler(questions, accept, log),
		Answer:       handlers.NewAnswerHandler(answers, accept, log),
		Comment:      handlers.NewCommentHandler(comments, log),
		Vote:         handlers.NewVoteHandler(votes, log),
		Tag:          handlers.NewTagHandler(mod, log),
		Notification: handlers.NewNotificationHandler(notifications, log),
		Admin:        handlers.NewAdminHandler(mod, notifications, log),
		AI:           handlers.NewAIHandler(ai, log),
		User:         handlers.NewUserHandler(users, log),
	}, cfg.Gatherer)

	return &App{Engine: r, Votes: votes, Questions: questions}, nil
}

// Handlers 路由需要的全部处理器
type Handlers struct {
	Auth         *handlers.AuthHandler
	Question     *handlers.QuestionHandler
	Answer       *handlers.AnswerHandler
	Comment      *handlers.CommentHandler
	Vote         *handlers.VoteHandler
	Tag          *handlers.TagHandler
	Notification *handlers.NotificationHandler
	Admin        *handlers.AdminHandler
	AI           *handlers.AIHandler
	User         *handlers.UserHandler
}

// RegisterRoutes gatherer 为 nil 时使用默认 registry
func RegisterRoutes(r *gin.Engine, h Handlers, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	auth := middleware.AuthRequired()
	write := []gin.HandlerFunc{auth, middleware.NotBanned()}

	// 认证 (Auth)
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/logout", h.Auth.Logout)
	api.GET("/auth/me", auth, h.Auth.Me)

	// 问题 (Questions)
	questions := api.Group("/questions")
	{
		questions.GET("", h.Question.List)
		questions.GET("/:id", h.Question.Detail)
		questions.POST("", append(write, h.Question.Create)...)
		questions.PUT("/:id", append(write, h.Question.Update)...)
		questions.DELETE("/:id", append(write, h.Question.Delete)...)
		questions.POST("/:id/vote", append(write, h.Vote.For(models.VoteTargetQuestion))...)
		questions.POST("/:id/accept/:answerId", append(write, h.Question.Accept)...)
		questions.DELETE("/:id/accept", append(write, h.Question.Unaccept)...)
	}

	// 回答和评论 (Answers & Comments)
	answers := api.Group("/answers")
	{
		answers.POST("/:id/answers", append(write, h.Answer.Create)...)
		answers.PUT("/:id", append(write, h.Answer.Update)...)
		answers.DELETE("/:id", append(write, h.Answer.Delete)...)
		answers.POST("/:id/vote", append(write, h.Vote.For(models.VoteTargetAnswer))...)
		answers.POST("/:id/accept", append(write, h.Answer.Accept)...)

		answers.GET("/:id/comments", h.Comment.Thread)
		answers.POST("/:id/comments", append(write, h.Comment.Create)...)
		answers.PUT("/comments/:id", append(write, h.Comment.Update)...)
		answers.DELETE("/comments/:id", append(write, h.Comment.Delete)...)
		answers.POST("/comments/:id/vote", append(write, h.Vote.For(models.VoteTargetComment))...)
	}

	// 通用投票入口
	api.POST("/votes/:type/:id", append(write, h.Vote.Vote)...)

	// 标签 (Tags)
	tags := api.Group("/tags")
	{
		tags.GET("", h.Tag.List)
		tags.GET("/suggest", h.Tag.Suggest)
		tags.POST("", append(write, h.Tag.Create)...)
		tags.PATCH("/:id/approve", auth, middleware.AdminRequired(), h.Tag.Approve)
		tags.DELETE("/:id", auth, middleware.AdminRequired(), h.Tag.Delete)
	}

	// 通知 (Notifications)
	notifications := api.Group("/notifications", auth)
	{
		notifications.GET("", h.Notification.List)
		notifications.GET("/unread-count", h.Notification.UnreadCount)
		notifications.PUT("/:id", h.Notification.Read)
		notifications.PUT("", h.Notification.ReadAll)
	}

	// 用户 (Users)
	api.GET("/users/:id", h.User.Profile)
	api.GET("/users/me/reputation", auth, h.User.Reputation)

	// 管理后台 (Admin)
	admin := api.Group("/admin", auth, middleware.AdminRequired())
	{
		admin.GET("/users", h.Admin.Users)
		admin.PATCH("/users/:id/ban", h.Admin.Ban)
		admin.GET("/stats", h.Admin.Stats)
		admin.POST("/announcements", h.Admin.Announce)
	}

	// AI 回答
	api.GET("/ai/stats", h.AI.Stats)
	ai := api.Group("/ai/answer")
	{
		ai.POST("/:id", append(write, h.AI.Generate)...)
		ai.GET("/:id", h.AI.Get)
		ai.POST("/:id/vote", append(write, h.Vote.For(models.VoteTargetAIAnswer))...)
	}
}
