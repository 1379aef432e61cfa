package relation

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

type memoryChannel struct {
	ch   Channel
	data [2]map[string]string
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	channels map[string]*memoryChannel
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{channels: make(map[string]*memoryChannel)}
}

// Join creates the channel. Joining an existing channel keeps its data.
func (m *MemoryStore) Join(_ context.Context, ch Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[ch.ID()]; ok {
		return nil
	}
	m.channels[ch.ID()] = &memoryChannel{
		ch:   ch,
		data: [2]map[string]string{{}, {}},
	}
	return nil
}

// Break removes the channel and all its data.
func (m *MemoryStore) Break(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, id)
	return nil
}

// Exists reports whether the channel is joined.
func (m *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.channels[id]
	return ok, nil
}

// Read returns a copy of one side of the channel.
func (m *MemoryStore) Read(_ context.Context, id string, side Side) (map[string]string, error) {
	if err := checkSide(side); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[id]
	if !ok {
		return map[string]string{}, nil
	}
	return maps.Clone(c.data[side]), nil
}

// Write merges data into one side of the channel.
func (m *MemoryStore) Write(_ context.Context, id string, side Side, data map[string]string) error {
	if err := checkSide(side); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	maps.Copy(c.data[side], data)
	return nil
}

// Channels returns every joined channel sorted by ID.
func (m *MemoryStore) Channels(_ context.Context) ([]Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, 0, len(m.channels))
	for _, c := range m.channels {
		out = append(out, c.ch)
	}
	sortChannels(out)
	return out, nil
}

func checkSide(side Side) error {
	if side != SideProvider && side != SideConsumer {
		return fmt.Errorf("unknown side %s", side)
	}
	return nil
}
