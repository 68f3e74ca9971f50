package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/config"
	"github.com/tracklane/tracklane-backend/internal/database"
	"github.com/tracklane/tracklane-backend/internal/handlers"
	"github.com/tracklane/tracklane-backend/internal/middleware"
	"github.com/tracklane/tracklane-backend/internal/models"
	"github.com/tracklane/tracklane-backend/internal/routes"
	"github.com/tracklane/tracklane-backend/internal/services"
	"github.com/tracklane/tracklane-backend/internal/storage"
	"github.com/tracklane/tracklane-backend/pkg/logger"
)

func main() {
	config.LoadConfig()

	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}
	logger.Init(env)

	logger.Info().Str("environment", env).Msg("Starting Tracklane Backend...")

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db := database.Connect()
	database.InitRedis()

	logger.Info().Msg("Running database migrations...")
	tableModels := []interface{}{
		&models.User{},
		&models.Group{},
		&models.GroupMember{},
		&models.Project{},
		&models.ProjectGroup{},
		&models.ProjectUpdate{},
		&models.ChangeNote{},
		&models.Changelog{},
	}
	for _, m := range tableModels {
		if err := db.AutoMigrate(m); err != nil {
			logger.Fatal().Err(err).Msgf("Failed to migrate table for %T", m)
		}
	}
	logger.Info().Msg("Database migrations complete")

	// Resource storage: S3/R2 when configured, in-memory otherwise
	var store storage.ResourceStore
	if config.AppConfig.R2BucketName != "" {
		s3Store, err := storage.NewS3Store()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to init resource storage")
		}
		store = s3Store
	} else {
		logger.Warn().Msg("No object storage configured, using in-memory resource store")
		store = storage.NewMemoryStore()
	}

	// Services
	membershipSvc := services.NewMembershipService(db)
	changelogSvc := services.NewChangelogService(db)
	groupSvc := services.NewGroupService(db, membershipSvc, changelogSvc, store)
	projectSvc := services.NewProjectService(db, membershipSvc, changelogSvc, store)
	updateSvc := services.NewUpdateService(db, membershipSvc, projectSvc, changelogSvc)
	noteSvc := services.NewNoteService(db, projectSvc)

	// Router
	r := gin.New()
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.ErrorHandlerMiddleware())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.GeneralRateLimit())

	api := r.Group("/api")
	routes.Register(api, db, routes.Handlers{
		Auth:      handlers.NewAuthHandler(db),
		Groups:    handlers.NewGroupHandler(groupSvc),
		Projects:  handlers.NewProjectHandler(projectSvc, updateSvc),
		Updates:   handlers.NewUpdateHandler(updateSvc),
		Notes:     handlers.NewNoteHandler(noteSvc),
		Changelog: handlers.NewChangelogHandler(changelogSvc),
	})

	r.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		redisStatus := "ok"

		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			dbStatus = "error"
		}

		if database.Redis != nil {
			if _, err := database.Redis.Ping(context.Background()).Result(); err != nil {
				redisStatus = "error"
			}
		} else {
			redisStatus = "not configured"
		}

		status := "ok"
		if dbStatus != "ok" || (redisStatus != "ok" && redisStatus != "not configured") {
			status = "degraded"
		}

		c.JSON(200, gin.H{
			"status": status,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	})

	port := config.AppConfig.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		logger.Info().Str("port", port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Forced shutdown")
	}
	logger.Info().Msg("Server exited")
}
