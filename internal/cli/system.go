package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"nikkei-quiz-service/internal/app"
	"nikkei-quiz-service/internal/auth"
	"nikkei-quiz-service/internal/config"
	"nikkei-quiz-service/internal/events"
	"nikkei-quiz-service/internal/infra/file"
	"nikkei-quiz-service/internal/infra/memory"
	pgloader "nikkei-quiz-service/internal/infra/postgres"
	redisstore "nikkei-quiz-service/internal/infra/redis"
	"nikkei-quiz-service/internal/infra/relational"
	"nikkei-quiz-service/internal/infra/relational/migrations"
)

// statsStore is what every storage backend provides.
type statsStore interface {
	app.StatsRepository
	auth.UserRepository
}

// system holds the persistence handles selected by the config.
type system struct {
	questions app.QuestionRepository
	pending   app.PendingStore
	stats     statsStore
	events    app.EventPublisher
	closers   []func() error
}

func (s *system) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Printf("[SHUTDOWN] close: %v", err)
		}
	}
}

func buildSystem(ctx context.Context, cfg config.Config) (*system, error) {
	sys := &system{}
	ok := false
	defer func() {
		if !ok {
			sys.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		sys.closers = append(sys.closers, redisClient.Close)
		log.Printf("[STARTUP] using redis at %s", cfg.Redis.Addr)
	}

	loader, err := openQuestionLoader(ctx, cfg, sys)
	if err != nil {
		return nil, err
	}
	pool := memory.NewFallbackLoader(loader, builtinQuestions())
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		sys.questions = redisstore.NewQuestionRepository(redisClient, pool, quizTTL)
		sys.pending = redisstore.NewPendingStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute))
	} else {
		sys.questions = memory.NewQuestionRepository(pool, quizTTL)
		sys.pending = memory.NewPendingStore()
	}

	sys.stats, err = openStatsStore(ctx, cfg, sys)
	if err != nil {
		return nil, err
	}

	if cfg.Events.AMQPURL != "" {
		publisher, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			log.Printf("[EVENT] broker unavailable, events disabled: %v", err)
		} else {
			sys.events = publisher
			sys.closers = append(sys.closers, publisher.Close)
		}
	}

	ok = true
	return sys, nil
}

func openQuestionLoader(ctx context.Context, cfg config.Config, sys *system) (memory.QuestionLoader, error) {
	if cfg.Storage.Backend != config.BackendPostgres {
		log.Printf("[STARTUP] question pool from %s", cfg.File.QuestionsPath)
		return file.NewQuestionFile(cfg.File.QuestionsPath), nil
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	sys.closers = append(sys.closers, func() error { pool.Close(); return nil })
	log.Printf("[STARTUP] question pool from postgres")
	return pgloader.NewQuestionLoader(pool), nil
}

func openStatsStore(ctx context.Context, cfg config.Config, sys *system) (statsStore, error) {
	var db *bun.DB
	switch cfg.Storage.Backend {
	case config.BackendFile:
		store, err := file.Open(cfg.File.StatsPath, cfg.Stats.HistoryCap)
		if err != nil {
			return nil, fmt.Errorf("open stats file: %w", err)
		}
		log.Printf("[STARTUP] statistics in %s", cfg.File.StatsPath)
		return store, nil
	case config.BackendSQLite:
		var err error
		if db, err = relational.OpenSQLite(cfg.SQLite.Path); err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Printf("[STARTUP] statistics in sqlite %s", cfg.SQLite.Path)
	case config.BackendPostgres:
		db = relational.OpenPostgres(cfg.Postgres.URL)
		log.Printf("[STARTUP] statistics in postgres")
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	sys.closers = append(sys.closers, db.Close)
	if err := migrations.Run(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return relational.NewStore(db, cfg.Stats.HistoryCap), nil
}

// jwtSecret falls back to a random per-process secret; tokens then die with the process.
func jwtSecret(cfg config.Config) string {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	log.Printf("[AUTH] auth.jwt_secret not set, tokens will not survive a restart")
	return hex.EncodeToString(buf)
}
