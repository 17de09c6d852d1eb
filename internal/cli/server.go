package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/jobs"
	"live-quiz-service/internal/logger"
	transport "live-quiz-service/internal/transport/http"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
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

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, _ := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

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
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var responses app.ResponseStore = memory.NewResponseStore()
	if pool != nil {
		pgLoader := pgstore.NewQuizLoader(pool)
		if err := seedSampleQuizzes(ctx, pgLoader); err != nil {
			return err
		}
		loader = pgLoader
		responses = pgstore.NewResponseStore(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisstore.NewSessionStore(redisClient, redisTTL, log)
	} else {
		store = memory.NewSessionStore()
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithResponseStore(responses),
		app.WithRouter(app.NewBroadcastRouter(log, cfg.Session.Buffer)),
	}

	// Ended sessions are evicted after the retention window: through asynq when
	// Redis is available, otherwise with in-process timers.
	retention := config.TTLDuration(cfg.Session.Retention, 0)
	var (
		asynqClient *asynq.Client
		asynqServer *asynq.Server
		timer       *memory.EvictionTimer
	)
	switch {
	case retention > 0 && redisClient != nil:
		redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		asynqClient = asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		queue := jobs.InstanceQueue(instanceID())
		asynqServer = asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: 2,
			Queues:      map[string]int{queue: 1},
		})
		opts = append(opts, app.WithEvictionScheduler(jobs.NewScheduler(asynqClient, retention, queue)))
		log.Info("eviction queue", "queue", queue)
	case retention > 0:
		timer = memory.NewEvictionTimer(retention, log)
		defer timer.Stop()
		opts = append(opts, app.WithEvictionScheduler(timer))
	}

	service := app.NewQuizService(store, quizRepo, opts...)
	if timer != nil {
		timer.Attach(service)
	}
	if asynqServer != nil {
		if err := asynqServer.Start(jobs.NewHandlers(service, log).Mux()); err != nil {
			return err
		}
		defer asynqServer.Shutdown()
	}

	wsHandler := transport.NewWSHandler(service, log)
	admin := transport.NewAdminHandler(service, joinURL(finalPort), log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/ws/watch", wsHandler.ServeWatch)
	mux.Handle("/api/admin/", http.StripPrefix("/api/admin", admin.Routes()))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// websocket connections manage their own write deadlines
		WriteTimeout: 0,
	}

	go func() {
		log.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
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

// joinURL is the participant entry page encoded into session QR codes.
func joinURL(port string) string {
	if u := os.Getenv("PUBLIC_JOIN_URL"); u != "" {
		return u
	}
	return "http://localhost:" + port + "/join"
}

// instanceID names this process for its private eviction queue.
func instanceID() string {
	if id := os.Getenv("INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func seedSampleQuizzes(ctx context.Context, loader *pgstore.QuizLoader) error {
	for _, quiz := range sampleQuizzes() {
		if _, err := loader.LoadQuiz(ctx, quiz.Code); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrQuizNotFound) {
			return err
		}
		if err := loader.SaveQuiz(ctx, quiz); err != nil {
			return err
		}
	}
	return nil
}

// sampleQuizzes provides a demo quiz; quiz authoring lives outside this service.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"ABC123": {
			ID:    "quiz-1",
			Code:  "ABC123",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
				},
				{
					ID:   "q2",
					Text: "Which planet is known as the red planet?",
					Options: []domain.Option{
						{ID: "p1", Text: "Venus", Correct: false},
						{ID: "p2", Text: "Mars", Correct: true},
						{ID: "p3", Text: "Jupiter", Correct: false},
					},
				},
			},
		},
	}
}
