package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/guildfeed/internal/connection"
)

const insertEvent = `
	INSERT INTO feed_events (id, socket_id, event_type, guild_id, user_id, server_ts, received_at, data)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING
`

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Execer
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds batching settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before being flushed
	BufferSize    int           // Initial queue capacity
}

// Metrics counts writer activity.
type Metrics struct {
	Queued    int64 // Events accepted by Record
	Dropped   int64 // Events offered after Stop
	Inserts   int64
	Conflicts int64 // Rows already present
	Flushes   int64
	Errors    int64 // Failed batches; their rows are lost
}

// Writer journals feed events into PostgreSQL.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	// Input
	queue *Queue[connection.InboundEvent]

	// Database
	db DB

	// Batching
	batch   []eventRow
	batchMu sync.Mutex

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	consumed chan struct{}
	wg       sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewWriter creates a Writer. Call Start before recording events.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	return &Writer{
		cfg:      cfg,
		logger:   logger,
		queue:    NewQueue[connection.InboundEvent](cfg.BufferSize),
		db:       db,
		batch:    make([]eventRow, 0, cfg.BatchSize),
		consumed: make(chan struct{}),
	}
}

// Attach records every event m dispatches. The returned func detaches.
func (w *Writer) Attach(m *connection.Manager) func() {
	return m.OnMessage(w.Record)
}

// Record queues ev for insertion. It never blocks.
func (w *Writer) Record(ev connection.InboundEvent) {
	ok := w.queue.Push(ev)

	w.batchMu.Lock()
	if ok {
		w.metrics.Queued++
	} else {
		w.metrics.Dropped++
	}
	w.batchMu.Unlock()
}

// Start begins consuming queued events and flushing batches.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event journal started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the queue, flushes what remains and stops the writer. Events
// recorded after Stop are dropped, as are events queued on a writer that was
// never started.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping event journal")

	w.queue.Close()

	if w.cancel == nil {
		// Never started: nothing consumes the queue.
		pending := len(w.queue.DrainTo(0))
		w.batchMu.Lock()
		w.metrics.Dropped += int64(pending)
		w.batchMu.Unlock()
		w.logger.Info("event journal stopped", "dropped", pending)
		return nil
	}

	var err error
	select {
	case <-w.consumed:
	case <-ctx.Done():
		err = fmt.Errorf("drain journal queue: %w", ctx.Err())
		w.logger.Warn("event journal drain timed out", "pending", w.queue.Len())
	}

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	// Final flush
	w.flush(ctx)

	w.logger.Info("event journal stopped")
	return err
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves events from the queue into the batch until the queue is
// closed and empty.
func (w *Writer) consumeLoop() {
	defer close(w.consumed)

	for {
		ev, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.handleEvent(ev)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEvent adds an event to the batch, flushing when it is full.
func (w *Writer) handleEvent(ev connection.InboundEvent) {
	row := rowFromEvent(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		var data any
		if r.Data != nil {
			data = string(r.Data)
		}
		batch.Queue(insertEvent,
			r.ID, r.SocketID, r.Type, r.GuildID, r.UserID, r.ServerTs, r.ReceivedAt, data,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
