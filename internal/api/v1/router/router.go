package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/api/v1/handler"
	"app/internal/clients/prediction"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/pubsub"
	"app/internal/ratelimit"
	"app/internal/repository"
	"app/internal/service"
	"app/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	ctx := context.Background()

	// 1. Open DB connection pool
	dsn := cfg.DBConnectionString
	// In a development environment, ensure SSL is disabled for local
	// testing. In production the connection string carries its own SSL
	// settings.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "sslmode=disable"
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DB pool")
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Redis client for the rate limiter
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 3. Blob store for materialized results
	blobStore, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize blob store")
		return nil, nil, err
	}

	// 4. Prediction provider client; resolve the token from Secret Manager
	// when it is not injected via env.
	predictionToken := cfg.PredictionAPIToken
	if predictionToken == "" && cfg.PredictionTokenSecretName != "" {
		secrets, err := service.NewSecretManagerService(ctx, cfg.GCPProjectID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create Secret Manager client")
			return nil, nil, err
		}
		predictionToken, err = secrets.GetSecret(ctx, cfg.PredictionTokenSecretName)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to resolve prediction token")
			return nil, nil, err
		}
		_ = secrets.Close()
	}
	providerClient := prediction.NewClient(cfg.PredictionBaseURL, predictionToken, logger)

	// 5. Pub/Sub publisher for job lifecycle events
	publisher, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create Pub/Sub publisher")
		return nil, nil, err
	}

	// 6. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 7. Repositories & services & handlers
	creditRepo := repository.NewCreditRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	rotationRepo := repository.NewRotationRepo(pool)

	limiter := ratelimit.NewRedisLimiter(redisClient, logger)
	admissionSvc := service.NewAdmissionService(limiter, creditRepo, service.PoliciesFromConfig(cfg), logger)
	rotationSvc := service.NewRotationService(rotationRepo, cfg, logger)
	jobSvc := service.NewJobService(jobRepo, creditRepo, rotationSvc, admissionSvc, providerClient, blobStore, publisher, cfg.JobEventsTopic, logger)

	admissionHandler := handler.NewAdmissionHandler(admissionSvc, validate, logger)
	jobHandler := handler.NewJobHandler(jobSvc, admissionSvc, validate, logger)
	creditHandler := handler.NewCreditHandler(creditRepo, logger)
	maintenanceHandler := handler.NewMaintenanceHandler(jobSvc, time.Duration(cfg.JobStaleAfterMin)*time.Minute, logger)

	// 8. Middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	isLocalDev := cfg.Environment == "development"
	schedulerMiddleware := middleware.SchedulerAuthMiddleware(isLocalDev, cfg.SchedulerAudienceURL, cfg.SchedulerServiceAccountEmail, logger)

	// 9. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	admissionHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	jobHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	creditHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	internalMux := http.NewServeMux()
	maintenanceHandler.RegisterRoutes(internalMux, schedulerMiddleware)
	mux.Handle("/internal/", http.StripPrefix("/internal", internalMux))

	// Swagger documentation
	mux.HandleFunc("/swagger/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger/swagger.json")
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// 10. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger, c.Handler(mux)), pool, nil
}
