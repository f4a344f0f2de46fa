package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/kpawlowski/gradebook-api/api/swagger"
	"github.com/kpawlowski/gradebook-api/internal/handler"
	"github.com/kpawlowski/gradebook-api/internal/middleware"
	"github.com/kpawlowski/gradebook-api/internal/repository"
	"github.com/kpawlowski/gradebook-api/internal/service"
	"github.com/kpawlowski/gradebook-api/pkg/cache"
	"github.com/kpawlowski/gradebook-api/pkg/config"
	"github.com/kpawlowski/gradebook-api/pkg/database"
	"github.com/kpawlowski/gradebook-api/pkg/logger"
	corsmiddleware "github.com/kpawlowski/gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kpawlowski/gradebook-api/pkg/middleware/requestid"
)

// @title Gradebook API
// @version 1.0.0
// @description School gradebook backend over PostgreSQL
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Averages.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		cacheRepo = repository.NewRedisCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Averages.CacheTTL, logr, cfg.Averages.CacheEnabled)

	validate := validator.New()

	classYearRepo := repository.NewClassYearRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	gradeRepo := repository.NewGradeRepository(db)

	classYearSvc := service.NewClassYearService(classYearRepo, subjectRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, classYearRepo, cacheSvc, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, subjectRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, teacherRepo, classYearRepo, cacheSvc, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, studentRepo, subjectRepo, cacheSvc, cfg.Averages.CacheTTL, validate, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	handler.RegisterRoutes(api, handler.Handlers{
		ClassYears: handler.NewClassYearHandler(classYearSvc, subjectSvc),
		Students:   handler.NewStudentHandler(studentSvc),
		Teachers:   handler.NewTeacherHandler(teacherSvc),
		Subjects:   handler.NewSubjectHandler(subjectSvc),
		Grades:     handler.NewGradeHandler(gradeSvc),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
