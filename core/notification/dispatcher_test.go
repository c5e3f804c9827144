package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type handlerMock struct {
	mu       sync.Mutex
	received []NewNotification
	block    chan struct{}
	err      error
}

func (h *handlerMock) Send(_ context.Context, nn NewNotification) (Notification, error) {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, nn)
	return Notification{}, h.err
}

type logMock struct {
	mu       sync.Mutex
	warnings int
	errors   int
}

func (l *logMock) Warn(string, ...interface{}) {
	l.mu.Lock()
	l.warnings++
	l.mu.Unlock()
}

func (l *logMock) Error(string, ...interface{}) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func TestLocalDispatcher(t *testing.T) {
	handler := new(handlerMock)
	logger := new(logMock)
	d := NewLocalDispatcher(handler, logger, 8)

	for _, subject := range []string{"a", "b", "c"} {
		d.Dispatch(NewNotification{Subject: subject})
	}
	d.Close()

	assert.Len(t, handler.received, 3)
	assert.Equal(t, "a", handler.received[0].Subject)

	d.Dispatch(NewNotification{Subject: "late"})
	assert.Len(t, handler.received, 3)
	assert.Equal(t, 1, logger.warnings)
	d.Close()
}

func TestLocalDispatcher_DropsWhenFull(t *testing.T) {
	handler := &handlerMock{block: make(chan struct{})}
	logger := new(logMock)
	d := NewLocalDispatcher(handler, logger, 1)

	// the worker takes at most one, the queue holds one more
	for i := 0; i < 5; i++ {
		d.Dispatch(NewNotification{Subject: "s"})
	}
	close(handler.block)
	d.Close()

	assert.GreaterOrEqual(t, len(handler.received), 1)
	assert.LessOrEqual(t, len(handler.received), 2)
	assert.Equal(t, 5-len(handler.received), logger.warnings)
}

func TestDeliver(t *testing.T) {
	logger := new(logMock)
	assert.True(t, Deliver(new(handlerMock), logger, NewNotification{}))
	assert.False(t, Deliver(&handlerMock{err: errors.New("db down")}, logger, NewNotification{}))
	assert.Equal(t, 1, logger.errors)
}
