package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"live-trivia/internal/app"
	"live-trivia/internal/config"
	"live-trivia/internal/domain"
	"live-trivia/internal/infra/memory"
	pgloader "live-trivia/internal/infra/postgres"
	redisinfra "live-trivia/internal/infra/redis"
	transport "live-trivia/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		log.Info().Str("path", configPath).Msg("no config file, using defaults")
	}

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
	}
	sessionTTL := config.DurationOr(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.DurationOr(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionStore
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, sessionTTL)
	} else {
		store = memory.NewSessionStore()
	}

	service := app.NewGameService(store, quizRepo, log)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	idleTTL := config.DurationOr(cfg.Game.IdleTTL, 2*time.Hour)
	sweepInterval := config.DurationOr(cfg.Game.SweepInterval, 5*time.Minute)
	go service.RunJanitor(janitorCtx, sweepInterval, idleTTL)

	handler := transport.NewHandler(service, log)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting trivia server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides built-in quiz content for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"general-knowledge": {
			ID:   "general-knowledge",
			Name: "General Knowledge",
			Questions: []domain.Question{
				{
					ID:           "gk1",
					Text:         "Which planet is known as the Red Planet?",
					Options:      []string{"Venus", "Mars", "Jupiter", "Mercury"},
					CorrectIndex: 1,
				},
				{
					ID:           "gk2",
					Text:         "What is the largest ocean on Earth?",
					Options:      []string{"Atlantic", "Indian", "Arctic", "Pacific"},
					CorrectIndex: 3,
				},
				{
					ID:           "gk3",
					Text:         "How many continents are there?",
					Options:      []string{"5", "6", "7", "8"},
					CorrectIndex: 2,
				},
			},
		},
		"tech-basics": {
			ID:   "tech-basics",
			Name: "Tech Basics",
			Questions: []domain.Question{
				{
					ID:           "t1",
					Text:         "What does HTML stand for?",
					Options:      []string{"HyperText Markup Language", "High Tech Modern Language", "Hyperlink Text Main Line", "HyperTool Multi Language"},
					CorrectIndex: 0,
				},
				{
					ID:           "t2",
					Text:         "Which company created the Go programming language?",
					Options:      []string{"Microsoft", "Meta", "Google", "Amazon"},
					CorrectIndex: 2,
				},
			},
		},
	}
}
