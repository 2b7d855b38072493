package directory

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

type fileDoc struct {
	Subscribers []Subscriber `toml:"subscriber"`
}

// FileDirectory keeps the registry in a TOML file and hot-reloads it when
// the file changes on disk, so operators can edit subscriptions without a
// restart. Writes through the API persist back to the same file.
type FileDirectory struct {
	mu      sync.RWMutex
	path    string
	subs    map[string]Subscriber
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func OpenFileDirectory(path string) (*FileDirectory, error) {
	d := &FileDirectory{
		path: path,
		subs: make(map[string]Subscriber),
		done: make(chan struct{}),
	}
	if err := d.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("directory watcher failed: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		// The file may not exist yet; watch its creation lazily on first write.
		if closeErr := watcher.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("directory_watcher_close_failed")
		}
		return d, nil
	}
	d.watcher = watcher
	go d.watch()
	return d, nil
}

func (d *FileDirectory) watch() {
	for {
		select {
		case <-d.done:
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := d.reload(); err != nil {
				log.Warn().Err(err).Str("path", d.path).Msg("directory_reload_failed")
				continue
			}
			log.Info().Str("path", d.path).Msg("directory_reloaded")
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("directory_watcher_error")
		}
	}
}

func (d *FileDirectory) Close() error {
	close(d.done)
	if d.watcher != nil {
		return d.watcher.Close()
	}
	return nil
}

func (d *FileDirectory) reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("directory load failed (%s): %w", d.path, err)
	}
	var doc fileDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("directory parse failed (%s): %w", d.path, err)
	}
	subs := make(map[string]Subscriber, len(doc.Subscribers))
	for _, sub := range doc.Subscribers {
		if err := sub.Validate(); err != nil {
			return err
		}
		subs[sub.Identifier] = sub
	}
	d.mu.Lock()
	d.subs = subs
	d.mu.Unlock()
	return nil
}

func (d *FileDirectory) persistLocked() error {
	doc := fileDoc{Subscribers: make([]Subscriber, 0, len(d.subs))}
	for _, sub := range d.subs {
		doc.Subscribers = append(doc.Subscribers, sub)
	}
	sort.Slice(doc.Subscribers, func(i, j int) bool {
		return doc.Subscribers[i].Identifier < doc.Subscribers[j].Identifier
	})
	data, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.path, data, 0o600); err != nil {
		return fmt.Errorf("directory write failed (%s): %w", d.path, err)
	}
	return nil
}

func (d *FileDirectory) Find(identifier string) (Subscriber, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sub, ok := d.subs[identifier]
	if !ok {
		return Subscriber{}, ErrNotFound
	}
	return sub, nil
}

func (d *FileDirectory) List() ([]Subscriber, error) {
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

func (d *FileDirectory) Put(sub Subscriber) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[sub.Identifier] = sub
	return d.persistLocked()
}

func (d *FileDirectory) SetExpiration(identifier, expiresOn string) (Subscriber, error) {
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
	return sub, d.persistLocked()
}
