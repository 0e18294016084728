package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// record is a versioned document. The version only ever increases; a
// delete removes the entry entirely.
type record struct {
	data    []byte
	version int64
}

// Memory is an in-process Store used by tests and local development. It
// honors the same transaction and watch semantics as the Postgres
// implementation.
type Memory struct {
	mu      sync.RWMutex
	records map[string]record

	subMu sync.RWMutex
	subs  map[string]map[chan Event]struct{} // keyed by prefix
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]record),
		subs:    make(map[string]map[chan Event]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, path string, v any) error {
	m.mu.RLock()
	rec, ok := m.records[path]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(rec.data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (m *Memory) Put(_ context.Context, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	m.mu.Lock()
	rec := m.records[path]
	m.records[path] = record{data: data, version: rec.version + 1}
	m.mu.Unlock()
	m.publish(Event{Path: path, Data: data})
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	_, existed := m.records[path]
	delete(m.records, path)
	m.mu.Unlock()
	if existed {
		m.publish(Event{Path: path})
	}
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	m.mu.RLock()
	for path, rec := range m.records {
		if strings.HasPrefix(path, prefix) {
			out[path] = rec.data
		}
	}
	m.mu.RUnlock()
	return out, nil
}

// maxTxAttempts bounds the compare-and-retry loop.
const maxTxAttempts = 25

func (m *Memory) Transact(_ context.Context, path string, fn TxFunc) (bool, error) {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		m.mu.RLock()
		rec, exists := m.records[path]
		m.mu.RUnlock()

		var current []byte
		if exists {
			current = rec.data
		}

		next, err := fn(current)
		if err == ErrAbort {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		m.mu.Lock()
		latest, latestExists := m.records[path]
		if latestExists != exists || (exists && latest.version != rec.version) {
			m.mu.Unlock()
			continue // lost the race, re-run fn on the fresh value
		}
		var ev Event
		if next == nil {
			delete(m.records, path)
			ev = Event{Path: path}
		} else {
			m.records[path] = record{data: next, version: rec.version + 1}
			ev = Event{Path: path, Data: next}
		}
		m.mu.Unlock()

		if next != nil || exists {
			m.publish(ev)
		}
		return true, nil
	}
	return false, fmt.Errorf("transact %s after %d attempts: %w", path, maxTxAttempts, ErrContention)
}

func (m *Memory) Watch(prefix string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	m.subMu.Lock()
	if m.subs[prefix] == nil {
		m.subs[prefix] = make(map[chan Event]struct{})
	}
	m.subs[prefix][ch] = struct{}{}
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		delete(m.subs[prefix], ch)
		if len(m.subs[prefix]) == 0 {
			delete(m.subs, prefix)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

// publish fans an event out to all matching subscribers. Slow subscribers
// are skipped rather than blocking a writer.
func (m *Memory) publish(ev Event) {
	m.subMu.RLock()
	for prefix, chans := range m.subs {
		if !strings.HasPrefix(ev.Path, prefix) {
			continue
		}
		for ch := range chans {
			select {
			case ch <- ev:
			default:
			}
		}
	}
	m.subMu.RUnlock()
}
