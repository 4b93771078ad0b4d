package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/scan-io-git/scanio-ide/internal/workspace"
	"github.com/scan-io-git/scanio-ide/pkg/position"
	"github.com/scan-io-git/scanio-ide/pkg/shared/files"
)

// SnapshotSource provides the current content of a resource.
type SnapshotSource interface {
	Snapshot(ctx context.Context, res workspace.Resource) (*position.Snapshot, error)
}

// SnapshotFunc adapts a function to SnapshotSource.
type SnapshotFunc func(ctx context.Context, res workspace.Resource) (*position.Snapshot, error)

func (f SnapshotFunc) Snapshot(ctx context.Context, res workspace.Resource) (*position.Snapshot, error) {
	return f(ctx, res)
}

// FileSource reads resources from the filesystem below Root.
type FileSource struct {
	Root string
}

func (s FileSource) Snapshot(ctx context.Context, res workspace.Resource) (*position.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := files.EnsureWithinRoot(s.Root, filepath.Join(s.Root, filepath.FromSlash(string(res))))
	if err != nil {
		return nil, err
	}
	snap, err := position.Load(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", res, err)
	}
	return snap, nil
}

// FileError is the failure to reconcile one resource.
type FileError struct {
	Resource workspace.Resource
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Resource, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
