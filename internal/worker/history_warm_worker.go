package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"supportchat/internal/model"
	"supportchat/internal/platform/rabbitmq"
)

var ErrBadEvent = errors.New("bad exchange event")

type HistorySource interface {
	FullHistory(ctx context.Context, sessionID string) ([]model.Turn, error)
}

type HistoryWriter interface {
	SetHistory(ctx context.Context, sessionID string, turns []model.Turn, gen int64) (bool, error)
	Generation(ctx context.Context, sessionID string) (int64, bool, error)
}

// HistoryWarmWorker consumes completed exchanges and refills the history
// cache so the next conversation read is served from redis.
type HistoryWarmWorker struct {
	conn      *amqp.Connection
	history   HistorySource
	cache     HistoryWriter
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHistoryWarmWorker(conn *amqp.Connection, history HistorySource, cache HistoryWriter, queueName string, logger *zap.Logger) *HistoryWarmWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryWarmWorker{
		conn:      conn,
		history:   history,
		cache:     cache,
		queueName: queueName,
		logger:    logger.Named("history_warm_worker"),
	}
}

func (w *HistoryWarmWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					w.logger.Warn("warm history failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("worker started", zap.String("queue", w.queueName))
	return nil
}

// Handle processes one delivery body. A session whose dirty marker is set is
// skipped, and so is a load that an exchange overtook: in both cases the
// history was invalidated and the next read refills it.
func (w *HistoryWarmWorker) Handle(ctx context.Context, body []byte) error {
	var event model.ExchangeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %w", ErrBadEvent, err)
	}
	if event.SessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrBadEvent)
	}

	gen, dirty, err := w.cache.Generation(ctx, event.SessionID)
	if err != nil {
		return err
	}
	if dirty {
		w.logger.Debug("session dirty, skip warm", zap.String("session_id", event.SessionID))
		return nil
	}

	turns, err := w.history.FullHistory(ctx, event.SessionID)
	if err != nil {
		return fmt.Errorf("load history failed: %w", err)
	}
	stored, err := w.cache.SetHistory(ctx, event.SessionID, turns, gen)
	if err != nil {
		return err
	}
	if !stored {
		w.logger.Debug("history changed while loading, skip warm", zap.String("session_id", event.SessionID))
	}
	return nil
}

func (w *HistoryWarmWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
