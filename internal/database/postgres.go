package database

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
)

var (
	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("postgres repository: repository closed")

	// ErrQueueFull is returned by Add when the batch queue has no room. The
	// reading is dropped.
	ErrQueueFull = errors.New("postgres repository: batch queue full")
)

// DefaultWriteTimeout bounds a single batch INSERT.
const DefaultWriteTimeout = 5 * time.Second

// Config contains the configuration required to connect to a Postgres database.
type Config struct {
	DSN    string
	Runner CommandRunner
	Logger *infra.Logger
	// BatchSize determines how many readings are inserted by one statement.
	BatchSize int
	// BatchTimeout specifies how long to wait before flushing a partial batch.
	BatchTimeout time.Duration
	// BufferSize controls the capacity of the inbound reading queue.
	BufferSize int
	// WriteTimeout bounds each batch INSERT. Defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration
}

// Repository stores readings in public.pm_readings. Writes are queued and
// inserted in batches by a background goroutine; reads go straight to the
// database.
type Repository struct {
	dsn      string
	password string

	runner CommandRunner
	logger *infra.Logger

	batchSize    int
	batchTimeout time.Duration
	writeTimeout time.Duration
	buffer       chan domain.Reading
	stopCh       chan struct{}
	wg           sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
}

const (
	readingColumns = "ts, pm10, pm25, pm100, pm10_atmos, pm25_atmos, pm100_atmos, " +
		"count03, count05, count10, count25, count50, count100"
	readingColumnCount = 13

	selectLatestSQL = "SELECT " + readingColumns + " FROM public.pm_readings ORDER BY ts DESC, id DESC LIMIT 1"
	selectRangeSQL  = "SELECT " + readingColumns + " FROM public.pm_readings WHERE ts BETWEEN $1 AND $2 ORDER BY ts ASC, id ASC"
)

// New creates a repository backed by Postgres using a SQL command runner.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres repository: DSN is required")
	}

	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres repository: parse dsn: %w", err)
	}
	password, _ := parsed.User.Password()

	runner := cfg.Runner
	if runner == nil {
		runner = NewSQLRunner()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = batchSize
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout < 0 {
		batchTimeout = 0
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	repo := &Repository{
		dsn:          cfg.DSN,
		password:     password,
		runner:       runner,
		logger:       cfg.Logger,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		writeTimeout: writeTimeout,
		buffer:       make(chan domain.Reading, bufferSize),
		stopCh:       make(chan struct{}),
	}

	repo.wg.Add(1)
	go repo.run()

	return repo, nil
}

// Close flushes queued readings and releases the runner.
func (r *Repository) Close() error {
	r.mu.Lock()
	alreadyClosed := r.closed
	if !r.closed {
		r.closed = true
		close(r.stopCh)
	}
	r.mu.Unlock()

	if !alreadyClosed {
		r.wg.Wait()
	}

	var err error
	r.closeOnce.Do(func() {
		err = r.runner.Close()
	})
	return err
}

// Add queues a reading for the next batch without waiting. When the queue is
// full the reading is dropped and ErrQueueFull is returned, so a stalled
// database never holds up the caller.
func (r *Repository) Add(ctx context.Context, reading domain.Reading) error {
	if reading.Timestamp.IsZero() {
		return errors.New("postgres repository: reading timestamp is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Close takes the write lock, so the queue cannot be drained for the
	// last time while a send is in flight.
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}

	select {
	case r.buffer <- reading:
		return nil
	default:
		infra.IncDBWriteErrors()
		return ErrQueueFull
	}
}

func (r *Repository) run() {
	defer r.wg.Done()

	batch := make([]domain.Reading, 0, r.batchSize)
	var batchStart time.Time
	var timer *time.Timer

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.processBatch(batch, time.Since(batchStart))
		batch = batch[:0]
		stopTimer()
	}

	appendToBatch := func(reading domain.Reading) {
		batch = append(batch, reading)
		if len(batch) == 1 {
			batchStart = time.Now()
			if r.batchTimeout > 0 {
				timer = time.NewTimer(r.batchTimeout)
			}
		}
		if len(batch) >= r.batchSize {
			flush()
		}
	}

	for {
		var timeout <-chan time.Time
		if timer != nil {
			timeout = timer.C
		}

		select {
		case <-r.stopCh:
			for {
				select {
				case reading := <-r.buffer:
					appendToBatch(reading)
				default:
					flush()
					return
				}
			}
		case reading := <-r.buffer:
			appendToBatch(reading)
		case <-timeout:
			timer = nil
			flush()
		}
	}
}

func (r *Repository) processBatch(batch []domain.Reading, wait time.Duration) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	start := time.Now()
	err := r.insertBatch(ctx, batch)
	infra.RecordDBBatchFlush(time.Since(start), len(batch), wait)

	if err != nil {
		infra.IncDBWriteErrors()
		r.logger.Errorf(ctx, "postgres repository: batch of %d readings failed: %v", len(batch), err)
	}
}

func (r *Repository) insertBatch(ctx context.Context, batch []domain.Reading) error {
	statement, args := buildInsert(batch)

	tag, err := r.runner.Exec(ctx, r.dsn, r.password, statement, args...)
	if err != nil {
		return fmt.Errorf("postgres repository: insert readings: %w", err)
	}

	affected, err := parseRowsAffected(tag)
	if err != nil {
		return fmt.Errorf("postgres repository: parse insert result: %w", err)
	}
	if affected != int64(len(batch)) {
		return fmt.Errorf("postgres repository: inserted %d of %d readings", affected, len(batch))
	}
	return nil
}

// buildInsert renders one multi-row INSERT with positional parameters.
func buildInsert(batch []domain.Reading) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO public.pm_readings (")
	b.WriteString(readingColumns)
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*readingColumnCount)
	for i, reading := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for col := 0; col < readingColumnCount; col++ {
			if col > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(strconv.Itoa(i*readingColumnCount + col + 1))
		}
		b.WriteByte(')')

		f := reading.Frame
		args = append(args,
			reading.Timestamp.UTC(),
			int(f.PM10), int(f.PM25), int(f.PM100),
			int(f.PM10Atmos), int(f.PM25Atmos), int(f.PM100Atmos),
			int(f.Count03), int(f.Count05), int(f.Count10),
			int(f.Count25), int(f.Count50), int(f.Count100),
		)
	}
	return b.String(), args
}

// Latest returns the most recent stored reading.
func (r *Repository) Latest(ctx context.Context) (domain.Reading, error) {
	output, err := r.runner.Exec(ctx, r.dsn, r.password, selectLatestSQL)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("postgres repository: latest reading: %w", err)
	}

	readings, err := parseReadings(output)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("postgres repository: latest reading parse: %w", err)
	}
	if len(readings) == 0 {
		return domain.Reading{}, domain.ErrNotFound
	}
	return readings[0], nil
}

// InRange returns readings with from <= ts <= to, oldest first.
func (r *Repository) InRange(ctx context.Context, from, to time.Time) ([]domain.Reading, error) {
	output, err := r.runner.Exec(ctx, r.dsn, r.password, selectRangeSQL, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres repository: readings in range: %w", err)
	}

	readings, err := parseReadings(output)
	if err != nil {
		return nil, fmt.Errorf("postgres repository: readings in range parse: %w", err)
	}
	if len(readings) == 0 {
		return nil, domain.ErrNotFound
	}
	return readings, nil
}

func parseRowsAffected(tag string) (int64, error) {
	fields := strings.Fields(strings.TrimSpace(tag))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty command tag")
	}

	switch strings.ToUpper(fields[0]) {
	case "INSERT":
		if len(fields) < 3 {
			return 0, fmt.Errorf("unexpected command tag %q", tag)
		}
	case "UPDATE", "DELETE":
		if len(fields) < 2 {
			return 0, fmt.Errorf("unexpected command tag %q", tag)
		}
	default:
		return 0, fmt.Errorf("unsupported command tag %q", tag)
	}

	count, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rows affected: %w", err)
	}
	return count, nil
}

func parseReadings(output string) ([]domain.Reading, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(trimmed))
	reader.TrimLeadingSpace = true

	var results []domain.Reading
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if len(record) != readingColumnCount {
			return nil, fmt.Errorf("unexpected column count: %d", len(record))
		}

		reading, err := parseReading(record)
		if err != nil {
			return nil, err
		}
		results = append(results, reading)
	}

	return results, nil
}

func parseReading(record []string) (domain.Reading, error) {
	timestamp, err := time.Parse(time.RFC3339Nano, record[0])
	if err != nil {
		return domain.Reading{}, fmt.Errorf("parse timestamp: %w", err)
	}

	var values [readingColumnCount - 1]uint16
	for i := range values {
		v, err := strconv.ParseUint(strings.TrimSpace(record[i+1]), 10, 16)
		if err != nil {
			return domain.Reading{}, fmt.Errorf("parse column %d: %w", i+1, err)
		}
		values[i] = uint16(v)
	}

	return domain.Reading{
		Timestamp: timestamp.UTC(),
		Frame: domain.Frame{
			PM10: values[0], PM25: values[1], PM100: values[2],
			PM10Atmos: values[3], PM25Atmos: values[4], PM100Atmos: values[5],
			Count03: values[6], Count05: values[7], Count10: values[8],
			Count25: values[9], Count50: values[10], Count100: values[11],
		},
	}, nil
}

var _ domain.ReadingRepository = (*Repository)(nil)
