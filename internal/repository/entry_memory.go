package repository

import (
	"sort"
	"sync"
	"time"
)

// memoryEntryRepository keeps entries for the lifetime of the process only.
// Used for STORE_DRIVER=memory and in tests.
type memoryEntryRepository struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryEntryRepository() EntryRepository {
	return &memoryEntryRepository{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

func (r *memoryEntryRepository) ByKey(key string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &entry, nil
}

func (r *memoryEntryRepository) Put(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = Entry{Key: key, Value: value, UpdatedAt: r.now().UTC()}
	return nil
}

func (r *memoryEntryRepository) Delete(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, key)
	return nil
}

func (r *memoryEntryRepository) DeleteIf(key, value string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.Value != value {
		return false, nil
	}
	delete(r.entries, key)
	return true, nil
}

func (r *memoryEntryRepository) Take(key string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil, ErrEntryNotFound
	}
	delete(r.entries, key)
	return &entry, nil
}

func (r *memoryEntryRepository) List() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}
