// Package registry holds the tracked annotations of every resource between analysis runs,
// scoped per project.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-ide/internal/findings"
)

var ErrProjectNotOpen = errors.New("project is not open")

// Backend persists annotation sets. Load returns nil and no error for a resource that has
// no state yet. Implementations must be safe for concurrent use.
type Backend interface {
	Load(ctx context.Context, project, resource string) ([]findings.TrackedAnnotation, error)
	Save(ctx context.Context, project, resource string, annotations []findings.TrackedAnnotation) error
	Delete(ctx context.Context, project, resource string) error
	Resources(ctx context.Context, project string) ([]string, error)
	Close() error
}

// UpdateFunc computes the next annotation set of a resource from the previous one.
type UpdateFunc func(previous []findings.TrackedAnnotation) ([]findings.TrackedAnnotation, error)

type projectState struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	versions map[string]uint64
	inflight sync.WaitGroup

	// held while a commit pushes state to the host
	commitMu sync.Mutex
}

// bump records a change of resource and returns its new version. The caller holds the
// resource lock.
func (p *projectState) bump(resource string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions[resource]++
	return p.versions[resource]
}

func (p *projectState) version(resource string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.versions[resource]
}

func (p *projectState) lockFor(resource string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[resource]
	if !ok {
		l = &sync.Mutex{}
		p.locks[resource] = l
	}
	return l
}

// Registry serializes access to the tracked state of each resource. Operations on
// different resources run concurrently.
type Registry struct {
	backend Backend
	logger  hclog.Logger

	mu       sync.Mutex
	projects map[string]*projectState
}

// New creates a Registry over backend. A nil logger discards output.
func New(backend Backend, logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{
		backend:  backend,
		logger:   logger.Named("registry"),
		projects: make(map[string]*projectState),
	}
}

// OpenProject makes project available. Opening an open project is a no-op.
func (r *Registry) OpenProject(project string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project]; ok {
		return
	}
	r.projects[project] = &projectState{
		locks:    make(map[string]*sync.Mutex),
		versions: make(map[string]uint64),
	}
	r.logger.Debug("project opened", "project", project)
}

// CloseProject rejects new operations on project and waits for the running ones. The
// persisted state is kept for the next OpenProject.
func (r *Registry) CloseProject(project string) {
	r.mu.Lock()
	p, ok := r.projects[project]
	delete(r.projects, project)
	r.mu.Unlock()
	if !ok {
		return
	}
	p.inflight.Wait()
	r.logger.Debug("project closed", "project", project)
}

// acquire registers an operation on project. The returned func must be called when the
// operation is over.
func (r *Registry) acquire(project string) (*projectState, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[project]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrProjectNotOpen, project)
	}
	p.inflight.Add(1)
	return p, p.inflight.Done, nil
}

// Update runs fn on the current state of resource and stores what it returns. The whole
// read-modify-write holds the resource lock, so concurrent updates of one resource never
// interleave. Returning an empty set removes the resource state.
func (r *Registry) Update(ctx context.Context, project, resource string, fn UpdateFunc) ([]findings.TrackedAnnotation, error) {
	next, _, err := r.UpdateVersioned(ctx, project, resource, fn)
	return next, err
}

// UpdateVersioned is Update that also returns the version the stored set got. Versions
// grow by one with every stored change of the resource while the project is open; pass
// them to Commit.
func (r *Registry) UpdateVersioned(ctx context.Context, project, resource string, fn UpdateFunc) ([]findings.TrackedAnnotation, uint64, error) {
	p, release, err := r.acquire(project)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	lock := p.lockFor(resource)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	previous, err := r.backend.Load(ctx, project, resource)
	if err != nil {
		return nil, 0, fmt.Errorf("load state of %s: %w", resource, err)
	}
	next, err := fn(previous)
	if err != nil {
		return nil, 0, err
	}

	if len(next) == 0 {
		err = r.backend.Delete(ctx, project, resource)
	} else {
		err = r.backend.Save(ctx, project, resource, next)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("store state of %s: %w", resource, err)
	}
	return next, p.bump(resource), nil
}

// Commit runs fn while no other commit of project runs. current holds the resources of
// versions that are still the latest stored ones; a resource whose state changed again
// after its version was taken is left out, since a later commit carries the newer set.
// Commits therefore reach the host in the order the state was stored.
func (r *Registry) Commit(project string, versions map[string]uint64, fn func(current []string) error) error {
	p, release, err := r.acquire(project)
	if err != nil {
		return err
	}
	defer release()

	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	current := make([]string, 0, len(versions))
	for resource, v := range versions {
		if p.version(resource) == v {
			current = append(current, resource)
		} else {
			r.logger.Debug("superseded state not committed", "project", project, "resource", resource, "version", v)
		}
	}
	sort.Strings(current)
	return fn(current)
}

// Get returns the current state of resource.
func (r *Registry) Get(ctx context.Context, project, resource string) ([]findings.TrackedAnnotation, error) {
	p, release, err := r.acquire(project)
	if err != nil {
		return nil, err
	}
	defer release()

	lock := p.lockFor(resource)
	lock.Lock()
	defer lock.Unlock()
	return r.backend.Load(ctx, project, resource)
}

// Resources lists the resources of project that have state.
func (r *Registry) Resources(ctx context.Context, project string) ([]string, error) {
	_, release, err := r.acquire(project)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.backend.Resources(ctx, project)
}

// Clear forgets the state of the given resources, or of every resource of project when
// none is given.
func (r *Registry) Clear(ctx context.Context, project string, resources ...string) error {
	p, release, err := r.acquire(project)
	if err != nil {
		return err
	}
	defer release()

	if len(resources) == 0 {
		resources, err = r.backend.Resources(ctx, project)
		if err != nil {
			return err
		}
	}

	var errs []error
	for _, resource := range resources {
		lock := p.lockFor(resource)
		lock.Lock()
		if err := r.backend.Delete(ctx, project, resource); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", resource, err))
		} else {
			p.bump(resource)
		}
		lock.Unlock()
	}
	r.logger.Debug("state cleared", "project", project, "resources", len(resources))
	return errors.Join(errs...)
}

// Close closes the backend. Open projects are closed first.
func (r *Registry) Close() error {
	r.mu.Lock()
	names := make([]string, 0, len(r.projects))
	for name := range r.projects {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		r.CloseProject(name)
	}
	return r.backend.Close()
}
