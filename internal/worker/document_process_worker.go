package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"docchat/internal/model"
	"docchat/internal/pkg/logger"
	"docchat/internal/platform/rabbitmq"
)

// JobHandler runs one queued processing job. Returning ErrRetry requeues the delivery.
type JobHandler interface {
	HandleProcessJob(ctx context.Context, job model.ProcessDocumentJob) error
}

var ErrRetry = errors.New("retry job later")

const defaultRetryDelay = 5 * time.Second

type DocumentProcessWorker struct {
	conn      *amqp.Connection
	handler   JobHandler
	queueName string
	log       *logger.Logger

	// RetryDelay is how long a deferred job is held before it goes back to the queue.
	RetryDelay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDocumentProcessWorker(conn *amqp.Connection, handler JobHandler, queueName string, log *logger.Logger) *DocumentProcessWorker {
	return &DocumentProcessWorker{
		conn:       conn,
		handler:    handler,
		queueName:  queueName,
		log:        log,
		RetryDelay: defaultRetryDelay,
	}
}

func (w *DocumentProcessWorker) Start(ctx context.Context) error {
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
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	// Indexing is heavy; take one job at a time per worker.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
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
				w.handle(workerCtx, d)
			}
		}
	}()

	w.log.Info("document process worker started", "queue", w.queueName)
	return nil
}

func (w *DocumentProcessWorker) handle(ctx context.Context, d amqp.Delivery) {
	ack, requeue := w.dispatch(ctx, d.Body)
	if ack {
		_ = d.Ack(false)
		return
	}
	if requeue {
		w.backoff(ctx)
	}
	_ = d.Nack(false, requeue)
}

// backoff holds the delivery so a busy document is not redelivered in a tight
// loop. With Qos(1) nothing else is consumed meanwhile.
func (w *DocumentProcessWorker) backoff(ctx context.Context) {
	if w.RetryDelay <= 0 {
		return
	}
	timer := time.NewTimer(w.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// dispatch decodes and runs one job. It reports whether to ack and, if not,
// whether to requeue.
func (w *DocumentProcessWorker) dispatch(ctx context.Context, body []byte) (ack, requeue bool) {
	var job model.ProcessDocumentJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.log.Error("worker decode job failed", "error", err)
		return false, false
	}

	if err := w.handler.HandleProcessJob(ctx, job); err != nil {
		if errors.Is(err, ErrRetry) {
			w.log.Warn("worker job deferred", "document_id", job.DocumentID, "error", err)
			return false, true
		}
		w.log.Error("worker process document failed", "document_id", job.DocumentID, "user_id", job.UserID, "error", err)
		return false, false
	}
	return true, false
}

func (w *DocumentProcessWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
