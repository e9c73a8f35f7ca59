package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"pms-exporter/internal/domain"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1024

// Repository keeps the most recent readings in a fixed-size ring. Once full,
// every Add overwrites the oldest reading.
type Repository struct {
	mu       sync.RWMutex
	readings []domain.Reading
	next     int
	size     int
}

// New creates an empty ring holding at most capacity readings.
func New(capacity int) *Repository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Repository{readings: make([]domain.Reading, capacity)}
}

// Add stores a reading, evicting the oldest one when the ring is full.
func (r *Repository) Add(_ context.Context, reading domain.Reading) error {
	if reading.Timestamp.IsZero() {
		return errors.New("memory repository: reading timestamp is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.push(reading)
	return nil
}

func (r *Repository) push(reading domain.Reading) {
	r.readings[r.next] = reading
	r.next = (r.next + 1) % len(r.readings)
	if r.size < len(r.readings) {
		r.size++
	}
}

// Len reports how many readings are currently held.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Latest returns the most recently added reading.
func (r *Repository) Latest(_ context.Context) (domain.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.size == 0 {
		return domain.Reading{}, domain.ErrNotFound
	}
	last := (r.next - 1 + len(r.readings)) % len(r.readings)
	return r.readings[last], nil
}

// InRange returns readings with from <= timestamp <= to in insertion order.
func (r *Repository) InRange(_ context.Context, from, to time.Time) ([]domain.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if from.After(to) {
		return nil, domain.ErrNotFound
	}

	start := (r.next - r.size + len(r.readings)) % len(r.readings)
	var filtered []domain.Reading
	for i := 0; i < r.size; i++ {
		reading := r.readings[(start+i)%len(r.readings)]
		if reading.Timestamp.Before(from) || reading.Timestamp.After(to) {
			continue
		}
		filtered = append(filtered, reading)
	}

	if len(filtered) == 0 {
		return nil, domain.ErrNotFound
	}
	return filtered, nil
}

var _ domain.ReadingRepository = (*Repository)(nil)
