// Package mem implements store.Store entirely in process memory. It backs
// tests and single-node development runs.
package mem

import (
	"context"
	"sort"
	"sync"

	"ostiary.org/internal/store"
)

type object struct {
	data []byte
	meta map[string]string
}

type container struct {
	meta    map[string]string
	objects map[string]*object
}

// Store keeps containers and objects under a single RWMutex. Reads hand out
// copies so callers can never mutate shared state.
type Store struct {
	mu         sync.RWMutex
	containers map[string]*container
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{containers: make(map[string]*container)}
}

func (s *Store) EnsureContainer(ctx context.Context, name string, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[name]; ok {
		return nil
	}
	s.containers[name] = &container{
		meta:    store.NormalizeMeta(meta),
		objects: make(map[string]*object),
	}
	return nil
}

func (s *Store) ContainerMeta(ctx context.Context, name string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.containers[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyMeta(c.meta), nil
}

func (s *Store) DeleteContainer(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[name]
	if !ok {
		return store.ErrNotFound
	}
	if len(c.objects) > 0 {
		return store.ErrNotEmpty
	}
	delete(s.containers, name)
	return nil
}

func (s *Store) ListContainers(ctx context.Context, marker string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	names := make([]string, 0, len(s.containers))
	for name := range s.containers {
		names = append(names, name)
	}
	s.mu.RUnlock()
	return page(names, marker, limit), nil
}

func (s *Store) ListObjects(ctx context.Context, containerName, marker string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	c, ok := s.containers[containerName]
	if !ok {
		s.mu.RUnlock()
		return nil, store.ErrNotFound
	}
	names := make([]string, 0, len(c.objects))
	for name := range c.objects {
		names = append(names, name)
	}
	s.mu.RUnlock()
	return page(names, marker, limit), nil
}

func (s *Store) GetObject(ctx context.Context, containerName, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, err := s.lookup(containerName, name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(o.data))
	copy(data, o.data)
	return data, nil
}

func (s *Store) HeadObject(ctx context.Context, containerName, name string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, err := s.lookup(containerName, name)
	if err != nil {
		return nil, err
	}
	return copyMeta(o.meta), nil
}

func (s *Store) PutObject(ctx context.Context, containerName, name string, data []byte, meta map[string]string) error {
	return s.put(ctx, containerName, name, data, meta, false)
}

func (s *Store) PutObjectIfAbsent(ctx context.Context, containerName, name string, data []byte, meta map[string]string) error {
	return s.put(ctx, containerName, name, data, meta, true)
}

func (s *Store) put(ctx context.Context, containerName, name string, data []byte, meta map[string]string, ifAbsent bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[containerName]
	if !ok {
		return store.ErrNotFound
	}
	if ifAbsent {
		if _, exists := c.objects[name]; exists {
			return store.ErrExists
		}
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	c.objects[name] = &object{data: stored, meta: store.NormalizeMeta(meta)}
	return nil
}

func (s *Store) SetObjectMeta(ctx context.Context, containerName, name string, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(containerName, name)
	if err != nil {
		return err
	}
	o.meta = store.NormalizeMeta(meta)
	return nil
}

func (s *Store) DeleteObject(ctx context.Context, containerName, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[containerName]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := c.objects[name]; !ok {
		return store.ErrNotFound
	}
	delete(c.objects, name)
	return nil
}

// lookup must be called with at least the read lock held.
func (s *Store) lookup(containerName, name string) (*object, error) {
	c, ok := s.containers[containerName]
	if !ok {
		return nil, store.ErrNotFound
	}
	o, ok := c.objects[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func page(names []string, marker string, limit int) []string {
	if limit <= 0 || limit > store.DefaultPageSize {
		limit = store.DefaultPageSize
	}
	sort.Strings(names)
	out := make([]string, 0, limit)
	for _, name := range names {
		if marker != "" && name <= marker {
			continue
		}
		out = append(out, name)
		if len(out) == limit {
			break
		}
	}
	return out
}

func copyMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
