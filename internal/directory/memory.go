package directory

import (
	"sort"
	"sync"
)

// MemoryDirectory is a mutex-guarded in-process registry.
type MemoryDirectory struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

func NewMemoryDirectory(subs ...Subscriber) *MemoryDirectory {
	d := &MemoryDirectory{subs: make(map[string]Subscriber)}
	for _, s := range subs {
		d.subs[s.Identifier] = s
	}
	return d
}

func (d *MemoryDirectory) Find(identifier string) (Subscriber, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sub, ok := d.subs[identifier]
	if !ok {
		return Subscriber{}, ErrNotFound
	}
	return sub, nil
}

func (d *MemoryDirectory) List() ([]Subscriber, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Subscriber, 0, len(d.subs))
	for _, sub := range d.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier < out[j].Identifier
	})
	return out, nil
}

func (d *MemoryDirectory) Put(sub Subscriber) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[sub.Identifier] = sub
	return nil
}

func (d *MemoryDirectory) SetExpiration(identifier, expiresOn string) (Subscriber, error) {
	normalized, err := NormalizeExpiresOn(expiresOn)
	if err != nil {
		return Subscriber{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sub, ok := d.subs[identifier]
	if !ok {
		return Subscriber{}, ErrNotFound
	}
	sub.ExpiresOn = normalized
	d.subs[identifier] = sub
	return sub, nil
}
