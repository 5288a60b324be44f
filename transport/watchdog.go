package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// watchdogBody aborts the underlying request when no bytes arrive within timeout.
type watchdogBody struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	expired atomic.Bool
}

func newWatchdogBody(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *watchdogBody {
	w := &watchdogBody{
		body:    body,
		timeout: timeout,
		cancel:  cancel,
	}
	w.timer = time.AfterFunc(timeout, func() {
		w.expired.Store(true)
		cancel()
	})
	return w
}

func (w *watchdogBody) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && w.expired.Load() {
		return n, fmt.Errorf("%w: no data for %s", ErrReadTimeout, w.timeout)
	}
	if n > 0 {
		w.timer.Reset(w.timeout)
	}
	return n, err
}

func (w *watchdogBody) Close() error {
	w.timer.Stop()
	err := w.body.Close()
	w.cancel()
	return err
}
