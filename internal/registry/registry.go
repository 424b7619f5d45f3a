// Package registry holds the server's in-memory stream state: which keys
// are publishing, their lifecycle status, viewers and cached media.
package registry

import (
	"sync"

	"gamestream/pkg/logging"
	"gamestream/pkg/streamerr"
)

// Registry maps stream keys to live streams. The map lock is never held
// while a per-stream lock is taken.
type Registry struct {
	logger logging.Logger

	mu      sync.RWMutex
	streams map[string]*LiveStream
}

// New creates an empty registry.
func New(logger logging.Logger) *Registry {
	return &Registry{
		logger:  logger,
		streams: make(map[string]*LiveStream),
	}
}

// Create registers a new stream under key. A concurrent publish to the
// same key is last-writer-wins: the new stream displaces the old entry and
// the old publisher's finalization no longer touches the registry.
func (r *Registry) Create(key string) *LiveStream {
	s := newLiveStream(key)

	r.mu.Lock()
	old, existed := r.streams[key]
	r.streams[key] = s
	r.mu.Unlock()

	if existed {
		r.logger.WithFields(logging.Fields{
			"stream_key": key,
			"old_id":     old.ID,
			"new_id":     s.ID,
		}).Warn("Duplicate publish displaced existing stream")
	}
	return s
}

// Get looks a stream up by key.
func (r *Registry) Get(key string) (*LiveStream, error) {
	r.mu.RLock()
	s, ok := r.streams[key]
	r.mu.RUnlock()
	if !ok {
		return nil, streamerr.New(streamerr.KindStreamNotFound, "no stream for key %q", key)
	}
	return s, nil
}

// Remove drops whatever stream is registered under key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	delete(r.streams, key)
	r.mu.Unlock()
}

// RemoveStream drops s from the registry only if it is still the current
// entry for its key. A publisher that was displaced by a later writer must
// not remove the newer stream during its own teardown.
func (r *Registry) RemoveStream(s *LiveStream) {
	r.mu.Lock()
	if current, ok := r.streams[s.Key]; ok && current == s {
		delete(r.streams, s.Key)
	}
	r.mu.Unlock()
}

// List snapshots the registered streams.
func (r *Registry) List() []*LiveStream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LiveStream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	return out
}

// Count reports how many streams are registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
