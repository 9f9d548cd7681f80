// Package notify delivers security alerts to the operator channel. Delivery
// runs on background workers fed by a bounded queue so the request path never
// waits on the channel.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/antigravity/feed-gateway/internal/geo"
	"github.com/antigravity/feed-gateway/internal/metrics"
	"github.com/antigravity/feed-gateway/internal/models"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by a Sender whose channel has no credentials.
var ErrNotConfigured = errors.New("notification channel not configured")

// Event is one whitelist violation worth paging someone about.
type Event struct {
	Reason       string
	KeyName      string
	OwnerName    string
	OwnerContact string
	IP           string
	Domain       string
	Country      string
	Time         time.Time
}

// Sender pushes a single event to an external channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, e Event) error
}

// DeliveryRecorder stores the outcome of each delivery attempt.
type DeliveryRecorder interface {
	Record(ctx context.Context, entry *models.NotificationLog) error
}

const (
	resultSent    = "sent"
	resultFailed  = "failed"
	resultDropped = "dropped"
	resultSkipped = "skipped"
)

// Dispatcher fans events out to a fixed pool of workers.
type Dispatcher struct {
	sender      Sender
	locator     geo.Locator
	recorder    DeliveryRecorder
	metrics     *metrics.Metrics
	logger      *zap.Logger
	sendTimeout time.Duration
	workers     int

	queue  chan Event
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher builds a dispatcher; locator and recorder may be nil.
func NewDispatcher(cfg config.NotifyConfig, sender Sender, locator geo.Locator, recorder DeliveryRecorder, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if locator == nil {
		locator = geo.Noop{}
	}
	return &Dispatcher{
		sender:      sender,
		locator:     locator,
		recorder:    recorder,
		metrics:     m,
		logger:      logger,
		sendTimeout: cfg.SendTimeout,
		workers:     workers,
		queue:       make(chan Event, queueSize),
	}
}

// Start launches the workers. Call once.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Enqueue hands e to the workers without blocking. It reports false when the
// queue is full or the dispatcher is closed; the event is dropped.
func (d *Dispatcher) Enqueue(e Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- e:
		return true
	default:
		d.metrics.ObserveNotification(resultDropped)
		d.logger.Warn("Notification queue full, dropping event",
			zap.String("reason", e.Reason),
			zap.String("ip", e.IP))
		return false
	}
}

// Close stops accepting events and waits for queued ones to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for e := range d.queue {
		d.deliver(e)
	}
}

func (d *Dispatcher) deliver(e Event) {
	if e.Country == "" {
		e.Country = d.locator.Country(e.IP)
	}

	ctx := context.Background()
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	err := d.sender.Send(ctx, e)
	switch {
	case errors.Is(err, ErrNotConfigured):
		// 未配置通知渠道时静默跳过
		d.metrics.ObserveNotification(resultSkipped)
		d.logger.Debug("Notification channel not configured, skipping",
			zap.String("reason", e.Reason))
		return
	case err != nil:
		d.metrics.ObserveNotification(resultFailed)
		d.logger.Warn("Failed to deliver notification",
			zap.String("channel", d.sender.Channel()),
			zap.String("reason", e.Reason),
			zap.Error(err))
	default:
		d.metrics.ObserveNotification(resultSent)
		d.logger.Info("Notification delivered",
			zap.String("channel", d.sender.Channel()),
			zap.String("reason", e.Reason))
	}

	d.record(ctx, e, err)
}

func (d *Dispatcher) record(ctx context.Context, e Event, sendErr error) {
	if d.recorder == nil {
		return
	}
	entry := &models.NotificationLog{
		Channel: d.sender.Channel(),
		Reason:  e.Reason,
		Success: sendErr == nil,
	}
	if sendErr != nil {
		entry.Error = sendErr.Error()
	}
	// 发送超时不应影响投递记录的写入
	if err := d.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		d.metrics.ObserveFailure("notification_log")
		d.logger.Warn("Failed to record notification delivery", zap.Error(err))
	}
}
