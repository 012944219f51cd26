// Package app wires configuration into the clients and services shared by
// the HTTP server and the command line tool.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/sunoflow/internal/client"
	"github.com/makeasinger/sunoflow/internal/config"
	"github.com/makeasinger/sunoflow/internal/service"
	"github.com/makeasinger/sunoflow/internal/store"
	"github.com/redis/go-redis/v9"
)

// App holds the long-lived dependencies of one process
type App struct {
	Config *config.Config

	Redis *redis.Client
	Asynq *asynq.Client

	Suno    *client.SunoClient
	Direct  *client.SunoDirectClient // nil without a studio cookie
	Groq    *client.GroqClient
	Storage *client.R2Client // nil without R2 credentials

	Prompts    *service.PromptService
	Tasks      *service.TaskManager
	Music      *service.MusicManager
	Generation *service.GenerationService
}

// RedisOpt returns the asynq connection settings for cfg.
func RedisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// New validates cfg and builds the service graph. notifier may be nil.
// Optional integrations that fail to initialise are logged and left nil.
func New(ctx context.Context, cfg *config.Config, notifier service.Notifier) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		if cfg.Tasks.Backend == "redis" {
			a.Redis.Close()
			return nil, fmt.Errorf("redis required by task store: %w", err)
		}
		log.Printf("Warning: Redis not available: %v", err)
	}
	a.Asynq = asynq.NewClient(RedisOpt(&cfg.Redis))

	a.Suno = client.NewSunoClient(&cfg.Suno)
	a.Groq = client.NewGroqClient(&cfg.Groq)

	var sink client.ArtifactSink
	if cfg.R2Configured() {
		r2, err := client.NewR2Client(ctx, &cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			a.Storage = r2
			sink = r2
		}
	} else {
		log.Println("Info: R2 storage not configured, keeping songs local only")
	}

	if cfg.SunoDirect.Enabled() {
		direct, err := client.NewSunoDirectClient(ctx, &cfg.SunoDirect, nil)
		if err != nil {
			log.Printf("Warning: studio session not initialized: %v", err)
		} else {
			a.Direct = direct
		}
	}

	taskStore, err := store.Open(&cfg.Tasks, a.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Tasks = service.NewTaskManager(ctx, taskStore, cfg.Suno.MaxConcurrent)

	a.Music, err = service.NewMusicManager(cfg.Storage.OutputDir, sink)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open song library: %w", err)
	}

	a.Prompts = service.NewPromptService(a.Groq)
	a.Generation = service.NewGenerationService(a.Suno, a.Tasks, a.Music, a.Prompts, a.Asynq, notifier)
	return a, nil
}

// Close releases the network clients.
func (a *App) Close() {
	if a.Asynq != nil {
		a.Asynq.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}
