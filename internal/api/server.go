package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"todonest/internal/api/auth"
	"todonest/internal/api/middleware"
	"todonest/internal/config"
	"todonest/internal/model"
	"todonest/internal/pkg/mailqueue"
	"todonest/internal/pkg/metrics"
	"todonest/internal/pkg/notify"
	"todonest/internal/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、认证处理器以及 Gin 路由引擎。
type Server struct {
	cfg          *config.Config
	logger       *slog.Logger
	db           *gorm.DB
	rdb          *redis.Client
	router       *gin.Engine
	tokens       *token.Issuer
	auth         *auth.Handler
	userStore    auth.UserStore
	todoStore    TodoStore
	mailConsumer *mailqueue.Consumer
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis（邮件队列）
// 3. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Todo{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	// 初始化 Prometheus 指标
	metrics.InitMetrics()

	// 邮件投递走 Redis Streams：handler 只入队，后台 worker 负责 SMTP。
	producer := mailqueue.NewProducer(rdb, logger, cfg.App.MailQueueStream)
	delivery := notify.NewEmailNotifier(&cfg.Email, logger)

	consumerID, _ := os.Hostname()
	consumer, err := mailqueue.NewConsumer(rdb, delivery, logger,
		cfg.App.MailQueueStream, cfg.App.MailQueueGroup, consumerID)
	if err != nil {
		return nil, err
	}

	issuer := token.NewIssuer(cfg.Security.JWTSecret, cfg.Security.AccessTokenTTL, cfg.Security.RefreshTokenTTL)
	userStore := auth.NewStore(db)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		rdb:          rdb,
		router:       r,
		tokens:       issuer,
		auth:         auth.NewHandler(userStore, issuer, producer, cfg.Security.OtpTTL, cfg.Security.OtpLength, logger),
		userStore:    userStore,
		todoStore:    dbTodoStore{db: db},
		mailConsumer: consumer,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartMailWorker 启动后台邮件消费者。
func (s *Server) StartMailWorker(ctx context.Context) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in mail worker", slog.Any("panic", r))
			}
		}()
		if err := s.mailConsumer.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("mail worker stopped", slog.String("error", err.Error()))
		}
	}()
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/register", s.auth.Register)
	s.router.POST("/login", s.auth.Login)
	s.router.POST("/refresh", s.auth.Refresh)
	s.router.POST("/verify-otp", s.auth.VerifyOtp)
	s.router.POST("/resend-otp", s.auth.ResendOtp)
	s.router.POST("/forgot-password", s.auth.ForgotPassword)
	s.router.POST("/reset-password", s.auth.ResetPassword)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.tokens, s.userStore))
	authed.POST("/change-password", s.auth.ChangePassword)
	authed.GET("/me", s.auth.Me)
	authed.PUT("/me", s.auth.UpdateMe)

	authed.POST("/todos", s.handleCreateTodo)
	authed.GET("/todos", s.handleListTodos)
	authed.GET("/todos/:id", s.handleGetTodo)
	authed.PUT("/todos/:id", s.handleUpdateTodo)
	authed.DELETE("/todos/:id", s.handleDeleteTodo)
	authed.PATCH("/todos/:id/complete", s.handleToggleComplete)
	authed.PATCH("/todos/:id/archive", s.handleToggleArchive)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
