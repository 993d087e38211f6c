package repository

import "sync"

// knownCollections remembers which collections already exist in a remote store
// so the existence check runs once per collection per client.
type knownCollections struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func newKnownCollections() *knownCollections {
	return &knownCollections{names: make(map[string]struct{})}
}

// ensure runs create unless name is already known. A failed create is not
// remembered, so the next call retries.
func (k *knownCollections) ensure(name string, create func() error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.names[name]; ok {
		return nil
	}
	if err := create(); err != nil {
		return err
	}
	k.names[name] = struct{}{}
	return nil
}
