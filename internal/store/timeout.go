package store

import (
	"context"
	"time"
)

// WithTimeout wraps a Store so every call runs under its own deadline.
// A non-positive d returns s unchanged.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &deadlined{next: s, d: d}
}

type deadlined struct {
	next Store
	d    time.Duration
}

func (s *deadlined) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.d)
}

func (s *deadlined) EnsureContainer(ctx context.Context, container string, meta map[string]string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.EnsureContainer(ctx, container, meta)
}

func (s *deadlined) ContainerMeta(ctx context.Context, container string) (map[string]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.ContainerMeta(ctx, container)
}

func (s *deadlined) DeleteContainer(ctx context.Context, container string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.DeleteContainer(ctx, container)
}

func (s *deadlined) ListContainers(ctx context.Context, marker string, limit int) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.ListContainers(ctx, marker, limit)
}

func (s *deadlined) ListObjects(ctx context.Context, container, marker string, limit int) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.ListObjects(ctx, container, marker, limit)
}

func (s *deadlined) GetObject(ctx context.Context, container, object string) ([]byte, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.GetObject(ctx, container, object)
}

func (s *deadlined) HeadObject(ctx context.Context, container, object string) (map[string]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.HeadObject(ctx, container, object)
}

func (s *deadlined) PutObject(ctx context.Context, container, object string, data []byte, meta map[string]string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.PutObject(ctx, container, object, data, meta)
}

func (s *deadlined) PutObjectIfAbsent(ctx context.Context, container, object string, data []byte, meta map[string]string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.PutObjectIfAbsent(ctx, container, object, data, meta)
}

func (s *deadlined) SetObjectMeta(ctx context.Context, container, object string, meta map[string]string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.SetObjectMeta(ctx, container, object, meta)
}

func (s *deadlined) DeleteObject(ctx context.Context, container, object string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.DeleteObject(ctx, container, object)
}
