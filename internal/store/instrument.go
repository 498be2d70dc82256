package store

import (
	"context"
	"time"
)

// Instrumented wraps a Store and reports the latency of every call to
// observe, keyed by operation name. A nil observe returns s unchanged.
func Instrumented(s Store, observe func(op string, seconds float64)) Store {
	if observe == nil {
		return s
	}
	return &instrumented{next: s, observe: observe}
}

type instrumented struct {
	next    Store
	observe func(op string, seconds float64)
}

func (s *instrumented) timed(op string) func() {
	start := time.Now()
	return func() {
		s.observe(op, time.Since(start).Seconds())
	}
}

func (s *instrumented) EnsureContainer(ctx context.Context, container string, meta map[string]string) error {
	defer s.timed("ensure_container")()
	return s.next.EnsureContainer(ctx, container, meta)
}

func (s *instrumented) ContainerMeta(ctx context.Context, container string) (map[string]string, error) {
	defer s.timed("container_meta")()
	return s.next.ContainerMeta(ctx, container)
}

func (s *instrumented) DeleteContainer(ctx context.Context, container string) error {
	defer s.timed("delete_container")()
	return s.next.DeleteContainer(ctx, container)
}

func (s *instrumented) ListContainers(ctx context.Context, marker string, limit int) ([]string, error) {
	defer s.timed("list_containers")()
	return s.next.ListContainers(ctx, marker, limit)
}

func (s *instrumented) ListObjects(ctx context.Context, container, marker string, limit int) ([]string, error) {
	defer s.timed("list_objects")()
	return s.next.ListObjects(ctx, container, marker, limit)
}

func (s *instrumented) GetObject(ctx context.Context, container, object string) ([]byte, error) {
	defer s.timed("get_object")()
	return s.next.GetObject(ctx, container, object)
}

func (s *instrumented) HeadObject(ctx context.Context, container, object string) (map[string]string, error) {
	defer s.timed("head_object")()
	return s.next.HeadObject(ctx, container, object)
}

func (s *instrumented) PutObject(ctx context.Context, container, object string, body []byte, meta map[string]string) error {
	defer s.timed("put_object")()
	return s.next.PutObject(ctx, container, object, body, meta)
}

func (s *instrumented) PutObjectIfAbsent(ctx context.Context, container, object string, body []byte, meta map[string]string) error {
	defer s.timed("put_object_if_absent")()
	return s.next.PutObjectIfAbsent(ctx, container, object, body, meta)
}

func (s *instrumented) SetObjectMeta(ctx context.Context, container, object string, meta map[string]string) error {
	defer s.timed("set_object_meta")()
	return s.next.SetObjectMeta(ctx, container, object, meta)
}

func (s *instrumented) DeleteObject(ctx context.Context, container, object string) error {
	defer s.timed("delete_object")()
	return s.next.DeleteObject(ctx, container, object)
}
