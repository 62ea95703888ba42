package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"supportchat/internal/ai"
	"supportchat/internal/app"
	"supportchat/internal/cache"
	"supportchat/internal/config"
	"supportchat/internal/corpus"
	"supportchat/internal/logging"
	mysqlClient "supportchat/internal/platform/mysql"
	rabbitmqClient "supportchat/internal/platform/rabbitmq"
	redisClient "supportchat/internal/platform/redis"
	sqliteClient "supportchat/internal/platform/sqlite"
	"supportchat/internal/repository"
	"supportchat/internal/worker"
)

type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	HistoryWorker *worker.HistoryWarmWorker
	ChatService   *app.ChatService

	StartedAt time.Time
}

// OpenDatabase connects to the configured driver. SQL logs go through logger.
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	gormLog := logging.NewGormLogger(logger, 0)
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		return mysqlClient.New(ctx, cfg.MySQLDSN(), gormLog)
	default:
		return sqliteClient.New(ctx, cfg.SQLite.Path, gormLog)
	}
}

// NewGateway picks the AI client for the configured provider. Without an API
// key every exchange is answered from the corpus.
func NewGateway(ctx context.Context, cfg *config.Config) (app.Gateway, error) {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return ai.Unconfigured{Reason: "no api key configured"}, nil
	}

	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		return ai.NewOpenAICompatibleClient(ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		}), nil
	default:
		return ai.NewGeminiClient(ctx, ai.GeminiConfig{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			BaseURL:    cfg.LLM.BaseURL,
			APIVersion: cfg.LLM.APIVersion,
			Timeout:    cfg.LLMTimeout(),
		})
	}
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		StartedAt: time.Now(),
	}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	docs, err := corpus.Load(cfg.Chat.CorpusPath)
	if err != nil {
		return fmt.Errorf("load corpus failed: %w", err)
	}
	a.Logger.Info("corpus loaded", zap.String("path", cfg.Chat.CorpusPath), zap.Int("entries", docs.Len()))

	db, err := OpenDatabase(ctx, cfg, a.Logger)
	if err != nil {
		return err
	}
	a.DB = db
	if err := repository.Migrate(db); err != nil {
		return err
	}

	gateway, err := NewGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create ai gateway failed: %w", err)
	}
	if _, ok := gateway.(ai.Unconfigured); ok {
		a.Logger.Warn("no llm api key configured, answers come from the corpus only")
	}

	sessionRepo := repository.NewSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	var opts []app.Option

	var historyCache *cache.HistoryCache
	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = redisCli
		historyCache = cache.NewHistoryCache(
			redisCli,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		opts = append(opts, app.WithHistoryCache(historyCache))
	}

	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
		opts = append(opts, app.WithExchangePublisher(rabbitmqClient.NewExchangePublisher(mqConn, cfg.RabbitMQ.ExchangeQueue)))

		if historyCache != nil {
			a.HistoryWorker = worker.NewHistoryWarmWorker(mqConn, messageRepo, historyCache, cfg.RabbitMQ.ExchangeQueue, a.Logger)
			if err := a.HistoryWorker.Start(ctx); err != nil {
				return fmt.Errorf("start history worker failed: %w", err)
			}
		}
	}

	chatService, err := app.NewChatService(
		sessionRepo,
		messageRepo,
		gateway,
		docs,
		a.Logger.Named("chat"),
		app.ChatServiceConfig{
			HistoryWindow: cfg.Chat.HistoryWindow,
			AITimeout:     cfg.LLMTimeout(),
		},
		opts...,
	)
	if err != nil {
		return fmt.Errorf("create chat service failed: %w", err)
	}
	a.ChatService = chatService
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.HistoryWorker != nil {
		a.HistoryWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
