// Package workspace is the contract between the reconciliation engine and the host that
// displays annotations: resources carrying markers, mutated in observable batches.
package workspace

import (
	"context"
	"errors"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrMarkerNotFound   = errors.New("marker not found")
)

// Resource identifies a file of the host workspace by its slash separated path relative
// to the workspace root.
type Resource string

// MarkerID is the host-assigned identity of a marker.
type MarkerID int64

// Attributes holds the scalar attributes of a marker.
type Attributes map[string]interface{}

// Clone returns a shallow copy of a.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Marker is a host annotation attached to a resource.
type Marker struct {
	ID         MarkerID
	Resource   Resource
	Category   string
	Attributes Attributes
}

// ChangeKind tells what happened to a marker inside a batch.
type ChangeKind int

const (
	MarkerCreated ChangeKind = iota + 1
	MarkerUpdated
	MarkerDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case MarkerCreated:
		return "created"
	case MarkerUpdated:
		return "updated"
	case MarkerDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one marker mutation.
type Change struct {
	Kind     ChangeKind
	Marker   MarkerID
	Resource Resource
	Category string
}

// ChangeEvent is the single notification emitted for a batch that touched any marker.
type ChangeEvent struct {
	Seq     uint64
	Changes []Change
}

// Resources lists the distinct resources touched by the event.
func (e ChangeEvent) Resources() []Resource {
	seen := make(map[Resource]struct{})
	var out []Resource
	for _, c := range e.Changes {
		if _, ok := seen[c.Resource]; ok {
			continue
		}
		seen[c.Resource] = struct{}{}
		out = append(out, c.Resource)
	}
	return out
}

// Tx is the view of the store available inside a batch.
type Tx interface {
	Markers(res Resource, category string) ([]Marker, error)
	Create(res Resource, category string, attrs Attributes) (MarkerID, error)
	Update(id MarkerID, attrs Attributes) error
	Delete(id MarkerID) error
}

// Store is a host workspace. Batch gives fn exclusive access to the markers and emits at
// most one ChangeEvent once fn returns, whatever the number of mutations.
type Store interface {
	Batch(ctx context.Context, fn func(Tx) error) error
	Subscribe(buffer int) (<-chan ChangeEvent, func())
}
