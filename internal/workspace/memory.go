package workspace

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-process Store. Mutations inside a batch are applied directly, so a
// batch that fails halfway keeps what it did before failing and still notifies about it.
type MemoryStore struct {
	mu        sync.Mutex
	resources map[Resource]struct{}
	markers   map[MarkerID]Marker
	nextID    MarkerID
	seq       uint64

	subMu   sync.Mutex
	subs    map[int]chan ChangeEvent
	nextSub int
	dropped atomic.Uint64
}

// NewMemoryStore creates a store holding the given resources and no markers.
func NewMemoryStore(resources ...Resource) *MemoryStore {
	s := &MemoryStore{
		resources: make(map[Resource]struct{}),
		markers:   make(map[MarkerID]Marker),
		subs:      make(map[int]chan ChangeEvent),
	}
	for _, res := range resources {
		s.resources[res] = struct{}{}
	}
	return s
}

// AddResource makes res available to batches.
func (s *MemoryStore) AddResource(res Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[res] = struct{}{}
}

// RemoveResource forgets res together with its markers, as when a file is deleted from
// the workspace. No event is emitted.
func (s *MemoryStore) RemoveResource(res Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resources, res)
	for id, m := range s.markers {
		if m.Resource == res {
			delete(s.markers, id)
		}
	}
}

// HasResource reports whether res exists.
func (s *MemoryStore) HasResource(res Resource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resources[res]
	return ok
}

// Notifications returns the number of change events emitted so far.
func (s *MemoryStore) Notifications() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Dropped returns the number of events a full subscriber channel did not receive.
func (s *MemoryStore) Dropped() uint64 {
	return s.dropped.Load()
}

// Snapshot returns a copy of every marker of category on res, ordered by ID.
func (s *MemoryStore) Snapshot(res Resource, category string) []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(res, category)
}

func (s *MemoryStore) collect(res Resource, category string) []Marker {
	var out []Marker
	for _, m := range s.markers {
		if m.Resource == res && m.Category == category {
			m.Attributes = m.Attributes.Clone()
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Batch runs fn while holding the store exclusively. The lock is released on every path,
// including a panic inside fn. Changes fn made are published in one event even when fn
// fails or panics, since they stay in the store.
func (s *MemoryStore) Batch(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	defer func() {
		if len(tx.changes) > 0 {
			s.seq++
			s.publish(ChangeEvent{Seq: s.seq, Changes: tx.changes})
		}
	}()
	return fn(tx)
}

// Subscribe registers a listener. Delivery never blocks a batch: an event that does not fit
// into the channel buffer is dropped and counted. The returned func unsubscribes and closes
// the channel.
func (s *MemoryStore) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan ChangeEvent, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *MemoryStore) publish(ev ChangeEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

type memoryTx struct {
	store   *MemoryStore
	changes []Change
}

func (tx *memoryTx) requireResource(res Resource) error {
	if _, ok := tx.store.resources[res]; !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, res)
	}
	return nil
}

func (tx *memoryTx) Markers(res Resource, category string) ([]Marker, error) {
	if err := tx.requireResource(res); err != nil {
		return nil, err
	}
	return tx.store.collect(res, category), nil
}

func (tx *memoryTx) Create(res Resource, category string, attrs Attributes) (MarkerID, error) {
	if err := tx.requireResource(res); err != nil {
		return 0, err
	}
	tx.store.nextID++
	id := tx.store.nextID
	tx.store.markers[id] = Marker{ID: id, Resource: res, Category: category, Attributes: attrs.Clone()}
	tx.changes = append(tx.changes, Change{Kind: MarkerCreated, Marker: id, Resource: res, Category: category})
	return id, nil
}

func (tx *memoryTx) Update(id MarkerID, attrs Attributes) error {
	m, ok := tx.store.markers[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrMarkerNotFound, id)
	}
	if err := tx.requireResource(m.Resource); err != nil {
		return err
	}
	m.Attributes = attrs.Clone()
	tx.store.markers[id] = m
	tx.changes = append(tx.changes, Change{Kind: MarkerUpdated, Marker: id, Resource: m.Resource, Category: m.Category})
	return nil
}

func (tx *memoryTx) Delete(id MarkerID) error {
	m, ok := tx.store.markers[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrMarkerNotFound, id)
	}
	delete(tx.store.markers, id)
	tx.changes = append(tx.changes, Change{Kind: MarkerDeleted, Marker: id, Resource: m.Resource, Category: m.Category})
	return nil
}
