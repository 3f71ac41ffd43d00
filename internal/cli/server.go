package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/auth"
	"timed-quiz-service/internal/config"
	"timed-quiz-service/internal/countdown"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/memory"
	"timed-quiz-service/internal/infra/postgres"
	redisinfra "timed-quiz-service/internal/infra/redis"
	"timed-quiz-service/internal/infra/remote"
	"timed-quiz-service/internal/logger"
	transport "timed-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// submissionSink records submissions locally and doubles as the gateway
// when no remote submission endpoint is configured.
type submissionSink interface {
	transport.SubmissionRecorder
	app.SubmissionGateway
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var sink submissionSink = memory.NewSubmissionLog()
	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		if err := migrateDB(ctx, db, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = postgres.NewQuizLoader(pool)
		sink = postgres.NewSubmissionStore(db)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var store app.SessionStore
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL, log)
		store = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	} else {
		log.Warn("redis not configured; attempts will not survive a restart")
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("auth secret not configured; using an ephemeral one")
	}
	tokens := auth.NewTokens(secret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))

	var identities app.IdentityResolver = tokens
	if cfg.Identity.URL != "" {
		identities = remote.NewIdentityClient(cfg.Identity.URL, config.TTLDuration(cfg.Identity.Timeout, 5*time.Second))
	}
	var gateway app.SubmissionGateway = sink
	if cfg.Submission.URL != "" {
		gateway = remote.NewSubmissionGateway(cfg.Submission.URL, config.TTLDuration(cfg.Submission.Timeout, 10*time.Second))
	}

	ctrl := app.NewAttemptController(store, quizRepo, gateway, log,
		app.WithTicker(countdown.NewTicker(time.Second)),
		app.WithRetryPolicy(retryPolicy(cfg)),
	)
	defer ctrl.Shutdown()

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(transport.RouterConfig{
			Attempts:       ctrl,
			Identities:     identities,
			Tokens:         tokens,
			Submissions:    sink,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Log:            log,
		}),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func retryPolicy(cfg config.Config) app.RetryPolicy {
	policy := app.DefaultRetryPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	policy.InitialBackoff = config.TTLDuration(cfg.Retry.InitialBackoff, policy.InitialBackoff)
	policy.MaxBackoff = config.TTLDuration(cfg.Retry.MaxBackoff, policy.MaxBackoff)
	return policy
}

// sampleQuizzes serves when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:           "quiz-1",
			Title:        "Warm-up",
			Description:  "Three short questions.",
			Instructions: "Answer every question before submitting. Unanswered questions count as wrong when time runs out.",
			TimeLimit:    domain.TimeLimit{Minutes: 2},
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", Choices: []string{"3", "4", "5"}, CorrectAnswer: "4", Points: 1},
				{ID: "q2", Text: "Which planet is closest to the sun?", Choices: []string{"Venus", "Mercury", "Mars"}, CorrectAnswer: "Mercury", Points: 1},
				{ID: "q3", Text: "How many seconds are in an hour?", Choices: []string{"360", "3600", "60"}, CorrectAnswer: "3600", Points: 2},
			},
		},
	}
}
