package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-registration-api/api/swagger"
	"github.com/noah-isme/sma-registration-api/internal/handler"
	"github.com/noah-isme/sma-registration-api/internal/middleware"
	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/internal/repository"
	"github.com/noah-isme/sma-registration-api/internal/service"
	"github.com/noah-isme/sma-registration-api/pkg/cache"
	"github.com/noah-isme/sma-registration-api/pkg/config"
	"github.com/noah-isme/sma-registration-api/pkg/database"
	"github.com/noah-isme/sma-registration-api/pkg/firebase"
	"github.com/noah-isme/sma-registration-api/pkg/jobs"
	"github.com/noah-isme/sma-registration-api/pkg/logger"
	"github.com/noah-isme/sma-registration-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/sma-registration-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-registration-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-registration-api/pkg/validation"
)

// @title School Registration API
// @version 1.0.0
// @description Parent and children enrollment wizard with school office approval
// @BasePath /
// @schemes http

// documentBackend is satisfied by both the Postgres and the Firestore document repositories.
type documentBackend interface {
	Query(ctx context.Context, collection string, filters ...models.Filter) ([]models.Document, error)
	Get(ctx context.Context, collection, id string) (*models.Document, error)
	Add(ctx context.Context, collection string, data map[string]interface{}) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error
	Update(ctx context.Context, collection, id string, patch map[string]interface{}) error
}

// accountBackend is satisfied by both the local and the Firebase account repositories.
type accountBackend interface {
	CreateAccount(ctx context.Context, email, password string) (*models.Credential, error)
	SignOut(ctx context.Context, uid string) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type sessionBackend interface {
	Get(ctx context.Context, id string) (*models.RegistrationSession, error)
	Save(ctx context.Context, session *models.RegistrationSession) error
	Delete(ctx context.Context, id string) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fbClients, err := firebase.NewClients(ctx, cfg)
	if err != nil {
		logr.Fatal("failed to init firebase", zap.Error(err))
	}
	defer fbClients.Close() //nolint:errcheck

	var db *sqlx.DB
	if cfg.Store.Backend != config.StoreBackendFirestore || cfg.Accounts.Backend != config.AccountsBackendFirebase {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect database", zap.Error(err))
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			logr.Fatal("failed to prepare schema", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var docs documentBackend
	if cfg.Store.Backend == config.StoreBackendFirestore {
		docs = repository.NewFirestoreDocumentRepository(fbClients.Firestore)
	} else {
		docs = repository.NewDocumentRepository(db)
	}

	var sessions sessionBackend
	if redisClient != nil {
		sessions = repository.NewRedisSessionRepository(redisClient, cfg.Redis.KeyPrefix, logr)
	} else {
		logr.Warn("redis disabled, wizard sessions are kept in process memory")
		sessions = repository.NewMemorySessionRepository()
	}

	validate := validation.New(models.GradeLabels(), models.TimeSlotValues())
	metrics := service.NewMetricsService()

	authCfg := service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	}
	var accounts accountBackend
	var authService *service.AuthService
	if cfg.Accounts.Backend == config.AccountsBackendFirebase {
		firebaseAccounts := repository.NewFirebaseAccountRepository(fbClients.Auth)
		accounts = firebaseAccounts
		authService = service.NewAuthService(nil, firebaseAccounts, docs, validate.Engine(), logr, authCfg)
	} else {
		localAccounts := repository.NewAccountRepository(db, cfg.Registration.MinPasswordLength)
		accounts = localAccounts
		authService = service.NewAuthService(localAccounts, nil, docs, validate.Engine(), logr, authCfg)
	}

	var notifier *service.NotificationService
	var queue *jobs.Queue
	if cfg.Notifications.Enabled {
		router := jobs.NewRouter()
		queue = jobs.NewQueue("notifications", router.Dispatch, jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			MaxRetries: cfg.Notifications.Retries,
			RetryDelay: 2 * time.Second,
			Observer:   metrics.ObserveJob,
			Logger:     logr,
		})
		notifier = service.NewNotificationService(queue, mailer.New(cfg.Notifications, logr), docs, logr)
		notifier.Register(router)
		queue.Start(ctx)
	}

	uniqueness := service.NewUniquenessChecker(docs, accounts, cfg.Registration.SyntheticEmailDomain, metrics, logr)
	registrationService := service.NewRegistrationService(sessions, docs, accounts, uniqueness, validate, notifier, metrics, logr, service.RegistrationConfig{
		MaxChildren:          cfg.Registration.MaxChildren,
		MinPasswordLength:    cfg.Registration.MinPasswordLength,
		MinStudentAge:        cfg.Registration.MinStudentAge,
		SyntheticEmailDomain: cfg.Registration.SyntheticEmailDomain,
		SessionTTL:           cfg.Registration.SessionTTL,
		ApprovalRedirect:     cfg.Registration.ApprovalRedirect,
	})
	approvalService := service.NewApprovalService(docs, notifier, metrics, validate.Engine(), logr)

	checks := map[string]handler.ReadinessCheck{}
	if db != nil {
		checks["database"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	registrationHandler := handler.NewRegistrationHandler(registrationService)
	authHandler := handler.NewAuthHandler(authService)
	approvalHandler := handler.NewApprovalHandler(approvalService)
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics(metrics))
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	registerRoutes(api, routeDeps{
		registration: registrationHandler,
		auth:         authHandler,
		approval:     approvalHandler,
		tokens:       authService,
		audit:        docs,
		logger:       logr,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "store", cfg.Store.Backend, "accounts", cfg.Accounts.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	if queue != nil {
		if err := queue.Shutdown(shutdownCtx); err != nil {
			logr.Warn("notification queue did not drain", zap.Error(err))
		}
	}
}

type routeDeps struct {
	registration *handler.RegistrationHandler
	auth         *handler.AuthHandler
	approval     *handler.ApprovalHandler
	tokens       middleware.TokenValidator
	audit        middleware.AuditStore
	logger       *zap.Logger
}

func registerRoutes(api *gin.RouterGroup, deps routeDeps) {
	auth := api.Group("/auth")
	auth.POST("/login", deps.auth.Login)
	auth.POST("/token", deps.auth.Token)
	auth.GET("/me", middleware.JWT(deps.tokens), deps.auth.Me)

	reg := api.Group("/registrations")
	reg.POST("", deps.registration.Start)
	reg.GET("/:id", deps.registration.Get)
	reg.DELETE("/:id", deps.registration.Discard)
	reg.POST("/:id/attendance-mode", deps.registration.AttendanceMode)
	reg.POST("/:id/info", deps.registration.Info)
	reg.POST("/:id/terms", deps.registration.Terms)
	reg.POST("/:id/children-count", deps.registration.ChildrenCount)
	reg.POST("/:id/student-names", deps.registration.StudentNames)
	reg.POST("/:id/parent", deps.registration.Parent)
	reg.POST("/:id/enrollment-type", deps.registration.EnrollmentType)
	reg.POST("/:id/student", deps.registration.Student)
	reg.POST("/:id/time-slots", deps.registration.TimeSlots)
	reg.POST("/:id/back", deps.registration.Back)
	reg.POST("/:id/edit", deps.registration.Edit)
	reg.POST("/:id/submit", deps.registration.Submit)
	reg.GET("/:id/summary.pdf", deps.registration.SummaryPDF)

	admin := api.Group("/admin", middleware.JWT(deps.tokens), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
	admin.GET("/registrations/pending", deps.approval.ListPending)
	admin.GET("/registrations/pending/export.csv", deps.approval.ExportPending)
	admin.GET("/registrations/pending/export.pdf", deps.approval.ExportPendingPDF)
	admin.POST("/students/:id/approve",
		middleware.Audit(deps.audit, deps.logger, models.AuditActionStudentApprove, models.CollectionStudents),
		deps.approval.Approve)
	admin.POST("/students/:id/reject",
		middleware.Audit(deps.audit, deps.logger, models.AuditActionStudentReject, models.CollectionStudents),
		deps.approval.Reject)
}
