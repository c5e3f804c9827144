package notification

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Dispatcher delivers notifications in the background. Dispatch never blocks nor fails the caller;
// delivery failures are logged by the implementation.
type Dispatcher interface {
	Dispatch(nn NewNotification)
}

// Handler stores a dispatched notification.
type Handler interface {
	Send(ctx context.Context, nn NewNotification) (Notification, error)
}

type logger interface {
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

const sendTimeout = 10 * time.Second

// LocalDispatcher is an in-process Dispatcher backed by a buffered queue and a single worker.
type LocalDispatcher struct {
	handler Handler
	logger  logger
	queue   chan NewNotification
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

var _ Dispatcher = (*LocalDispatcher)(nil)

func NewLocalDispatcher(handler Handler, logger logger, size int) *LocalDispatcher {
	if size <= 0 {
		size = 1
	}
	d := &LocalDispatcher{
		handler: handler,
		logger:  logger,
		queue:   make(chan NewNotification, size),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *LocalDispatcher) run() {
	defer d.wg.Done()
	for nn := range d.queue {
		Deliver(d.handler, d.logger, nn)
	}
}

// Deliver hands `nn` to `handler`, logging a failure.
func Deliver(handler Handler, logger logger, nn NewNotification) bool {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if _, err := handler.Send(ctx, nn); err != nil {
		logger.Error(
			fmt.Sprintf("notification.Deliver: %v", err),
			err, map[string]interface{}{"recipient_id": nn.RecipientID, "recipient_role": nn.RecipientRole},
		)
		return false
	}
	return true
}

func (d *LocalDispatcher) Dispatch(nn NewNotification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notification.Dispatch: dispatcher closed, notification dropped")
		return
	}
	select {
	case d.queue <- nn:
	default:
		d.logger.Warn("notification.Dispatch: queue full, notification dropped")
	}
}

// Close stops accepting notifications and waits for the queued ones to be delivered.
func (d *LocalDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
