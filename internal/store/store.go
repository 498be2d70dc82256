// Package store defines the backing object-store contract used to persist
// identity and token records. Implementations live in subpackages: mem holds
// everything in process memory, s3 talks to any S3-compatible service.
//
// All records live inside one reserved namespace owned by the gateway.
// Containers group objects by purpose (one container per account, sharded
// token containers, the account-id mapping). Listings are paginated with a
// marker: results are lexicographically ordered names strictly greater than
// the marker, at most limit entries per page.
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
	ErrNotEmpty = errors.New("store: container not empty")
)

// DefaultPageSize bounds a single listing page when the caller passes
// limit <= 0.
const DefaultPageSize = 10000

// Store is the minimal object-store surface the auth layer needs. Metadata
// keys are lowercase. PutObject and SetObjectMeta replace the full metadata
// set of the object. Any failure other than the sentinel errors above means
// the backend itself misbehaved and must not be read as "record absent".
type Store interface {
	// EnsureContainer creates the container if missing. Existing containers
	// keep their current metadata.
	EnsureContainer(ctx context.Context, container string, meta map[string]string) error
	// ContainerMeta returns container metadata, ErrNotFound if absent.
	ContainerMeta(ctx context.Context, container string) (map[string]string, error)
	// DeleteContainer removes an empty container. ErrNotEmpty when objects
	// remain, ErrNotFound when the container does not exist.
	DeleteContainer(ctx context.Context, container string) error
	// ListContainers pages container names after marker.
	ListContainers(ctx context.Context, marker string, limit int) ([]string, error)

	// ListObjects pages object names within a container after marker.
	ListObjects(ctx context.Context, container, marker string, limit int) ([]string, error)
	// GetObject returns the object payload, ErrNotFound if absent.
	GetObject(ctx context.Context, container, object string) ([]byte, error)
	// HeadObject returns object metadata without the payload.
	HeadObject(ctx context.Context, container, object string) (map[string]string, error)
	// PutObject writes payload and metadata, overwriting any previous version.
	PutObject(ctx context.Context, container, object string, data []byte, meta map[string]string) error
	// PutObjectIfAbsent writes only when the object does not exist yet and
	// returns ErrExists otherwise. Concurrent writers get at most one win.
	PutObjectIfAbsent(ctx context.Context, container, object string, data []byte, meta map[string]string) error
	// SetObjectMeta replaces object metadata, keeping the payload.
	SetObjectMeta(ctx context.Context, container, object string, meta map[string]string) error
	// DeleteObject removes the object. Deleting a missing object returns
	// ErrNotFound.
	DeleteObject(ctx context.Context, container, object string) error
}

// NormalizeMeta lowercases metadata keys and drops empty pairs so both
// backends expose the same view.
func NormalizeMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
