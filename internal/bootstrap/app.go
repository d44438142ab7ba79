package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/app"
	"docchat/internal/cache"
	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/lock"
	"docchat/internal/pkg/logger"
	"docchat/internal/platform/database"
	rabbitmqClient "docchat/internal/platform/rabbitmq"
	redisClient "docchat/internal/platform/redis"
	"docchat/internal/repository"
	"docchat/internal/retrieval"
	"docchat/internal/session"
	"docchat/internal/storage"
	"docchat/internal/vectorindex"
	"docchat/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Sessions        session.Store
	AuthService     *app.AuthService
	DocumentService *app.DocumentService
	ChatService     *app.ChatService
	ProcessWorker   *worker.DocumentProcessWorker

	closers   []func() error
	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log, err := logger.New(logger.Options{
		Env:        cfg.App.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}
	return NewWithConfig(ctx, cfg, log)
}

// NewWithConfig wires every component from cfg. Redis and RabbitMQ are only
// dialed when configured.
func NewWithConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := database.New(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	a.DB = db
	if err := database.Migrate(db); err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
	}
	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
	}

	files, err := a.newStorage(ctx)
	if err != nil {
		return err
	}
	store, err := a.newIndexStore(ctx)
	if err != nil {
		return err
	}
	embedder, err := a.newEmbedder(ctx)
	if err != nil {
		return err
	}
	translator, err := a.newTranslator(ctx)
	if err != nil {
		return err
	}

	sessionTTL := time.Duration(cfg.Session.TTLMinutes) * time.Minute
	var locker lock.Locker = lock.NewMemoryLocker()
	var historyCache app.HistoryCache
	if a.Redis != nil {
		locker = lock.NewRedisLocker(a.Redis, time.Duration(cfg.Processing.LockTTLSeconds)*time.Second)
		historyCache = cache.NewHistoryCache(a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second)
	}
	if cfg.Session.Driver == "redis" {
		a.Sessions = session.NewRedisStore(a.Redis, sessionTTL)
	} else {
		a.Sessions = session.NewMemoryStore(sessionTTL)
	}

	var publisher rabbitmqClient.Publisher = rabbitmqClient.NopPublisher{}
	if a.MQConn != nil {
		publisher = rabbitmqClient.NewJSONPublisher(a.MQConn)
	}

	userRepo := repository.NewUserRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	indexer := ingest.NewIndexer(ingest.IndexerDeps{
		Registry:  documentRepo,
		Files:     files,
		Store:     store,
		Embedder:  embedder,
		Locker:    locker,
		Splitter:  ingest.NewSplitter(ingest.DefaultChunkSize, ingest.DefaultChunkOverlap),
		IndexRoot: cfg.Index.Root,
		Logger:    a.Logger.With("component", "indexer"),
	})
	factory := retrieval.NewFactory(retrieval.FactoryDeps{
		Documents:    documentRepo,
		Store:        store,
		Embedder:     embedder,
		Translator:   translator,
		PerDocumentK: cfg.Retrieval.PerDocumentK,
		MaxResults:   cfg.Retrieval.MaxResults,
		Logger:       a.Logger.With("component", "retrieval"),
	})

	a.AuthService = app.NewAuthService(
		userRepo,
		a.Sessions,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	eventsQueue := ""
	if a.MQConn != nil {
		eventsQueue = cfg.RabbitMQ.EventsQueue
	}
	a.DocumentService = app.NewDocumentService(app.DocumentServiceDeps{
		Documents:    documentRepo,
		Files:        files,
		Indexer:      indexer,
		Publisher:    publisher,
		Async:        cfg.Processing.Async,
		ProcessQueue: cfg.RabbitMQ.ProcessQueue,
		EventsQueue:  eventsQueue,
		Logger:       a.Logger.With("component", "documents"),
	})
	a.ChatService = app.NewChatService(app.ChatServiceDeps{
		Conversations: repository.NewConversationRepository(db),
		Messages:      repository.NewMessageRepository(db),
		Sessions:      a.Sessions,
		Searcher:      factory,
		HistoryCache:  historyCache,
		Logger:        a.Logger.With("component", "chat"),
	})

	if cfg.Processing.Async && a.MQConn != nil {
		a.ProcessWorker = worker.NewDocumentProcessWorker(a.MQConn, a.DocumentService, cfg.RabbitMQ.ProcessQueue, a.Logger.With("component", "worker"))
		a.ProcessWorker.RetryDelay = time.Duration(cfg.Processing.RetryDelaySeconds) * time.Second
		if err := a.ProcessWorker.Start(ctx); err != nil {
			return fmt.Errorf("start document worker failed: %w", err)
		}
	}

	a.Logger.Info("application wired",
		"database", cfg.Database.Driver,
		"index", cfg.Index.Driver,
		"storage", cfg.Storage.Driver,
		"embedding", embedder.Model(),
		"llm", cfg.LLM.Provider,
		"redis", a.Redis != nil,
		"rabbitmq", a.MQConn != nil,
		"async", cfg.Processing.Async,
	)
	return nil
}

func (a *App) newStorage(ctx context.Context) (storage.Storage, error) {
	cfg := a.Config.Storage
	if cfg.Driver == "s3" {
		return storage.NewS3(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	return storage.NewLocal(cfg.LocalRoot), nil
}

func (a *App) newIndexStore(ctx context.Context) (vectorindex.Store, error) {
	cfg := a.Config.Index
	if cfg.Driver != "pgvector" {
		return vectorindex.NewSQLiteStore(), nil
	}

	indexDB := a.DB
	if cfg.PostgresDSN != "" {
		db, err := database.New(ctx, "postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return database.Close(db) })
		indexDB = db
	} else if a.Config.Database.Driver != "postgres" {
		return nil, fmt.Errorf("index driver pgvector needs a postgres database or index.postgres_dsn")
	}

	store := vectorindex.NewPgvectorStore(indexDB)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) newEmbedder(ctx context.Context) (ai.Embedder, error) {
	cfg := a.Config.Embedding
	switch cfg.Provider {
	case "hash":
		return ai.NewHashEmbedder(cfg.Dimensions), nil
	case "gemini":
		client, err := ai.NewGeminiClient(ctx, cfg.APIKey, "", cfg.Model)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	case "openai":
		return ai.NewOpenAIEmbedder(ai.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: time.Duration(a.Config.LLM.TimeoutSeconds) * time.Second,
		}, cfg.BatchSize), nil
	}
	return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
}

func (a *App) newTranslator(ctx context.Context) (retrieval.QueryTranslator, error) {
	cfg := a.Config.LLM
	switch cfg.Provider {
	case "none", "":
		return retrieval.PassthroughTranslator{}, nil
	case "gemini":
		client, err := ai.NewGeminiClient(ctx, cfg.APIKey, cfg.Model, "")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return retrieval.NewLLMTranslator(client), nil
	case "openai":
		return retrieval.NewLLMTranslator(ai.NewOpenAICompatibleClient(ai.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		})), nil
	}
	return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
}

func (a *App) Close() error {
	var closeErr error
	if a.ProcessWorker != nil {
		a.ProcessWorker.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			closeErr = err
		}
	}
	if a.Logger != nil {
		a.Logger.Sync()
	}
	return closeErr
}
