// Package engine runs reconciliation for a set of files: resolve positions, keep identities
// stable against the tracked state and commit the result to the host workspace.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/scan-io-git/scanio-ide/internal/findings"
	"github.com/scan-io-git/scanio-ide/internal/markers"
	"github.com/scan-io-git/scanio-ide/internal/registry"
	"github.com/scan-io-git/scanio-ide/internal/workspace"
	"github.com/scan-io-git/scanio-ide/pkg/issuecorrelation"
	"github.com/scan-io-git/scanio-ide/pkg/position"
	"github.com/scan-io-git/scanio-ide/pkg/shared/config"
)

// Request carries the findings of the latest analysis of one resource.
type Request struct {
	Resource workspace.Resource
	Findings []findings.Finding
}

// Report describes the outcome of a Run.
type Report struct {
	Annotations map[workspace.Resource][]findings.TrackedAnnotation
	Failed      map[workspace.Resource]error
	Skipped     []workspace.Resource
	// Superseded lists files whose state a concurrent run replaced before this run could
	// apply it. Their markers are left to that run.
	Superseded []workspace.Resource
	Applied    markers.Result
}

// Engine reconciles files of a project against its tracked state and applies the result.
type Engine struct {
	registry *registry.Registry
	applier  *markers.Applier
	source   SnapshotSource
	tracker  *issuecorrelation.Tracker
	jobs     int
	logger   hclog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithJobs bounds the number of files reconciled concurrently.
func WithJobs(jobs int) Option {
	return func(e *Engine) {
		if jobs > 0 {
			e.jobs = jobs
		}
	}
}

// WithTracker replaces the default tracker.
func WithTracker(tracker *issuecorrelation.Tracker) Option {
	return func(e *Engine) { e.tracker = tracker }
}

// WithLogger sets the logger the engine and its tracker write to.
func WithLogger(logger hclog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an Engine.
func New(reg *registry.Registry, applier *markers.Applier, source SnapshotSource, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		applier:  applier,
		source:   source,
		jobs:     config.DefaultJobs,
		logger:   hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("engine")
	if e.tracker == nil {
		e.tracker = issuecorrelation.NewTracker(issuecorrelation.WithLogger(e.logger))
	}
	return e
}

// Run reconciles every request of project and applies the results under category in one
// batch. Files are handled concurrently, at most the configured number at a time.
//
// A file whose content cannot be read is reported in Report.Failed and does not stop the
// other files. Once ctx is cancelled no new file is started; the files already reconciled
// are still applied so the host matches the tracked state, and ctx.Err() is returned.
//
// Concurrent runs over the same files reach the host in the order their state was stored:
// a file whose state another run replaced in the meantime is reported in
// Report.Superseded instead of being applied.
func (e *Engine) Run(ctx context.Context, project, category string, reqs []Request) (Report, error) {
	report := Report{
		Annotations: make(map[workspace.Resource][]findings.TrackedAnnotation),
		Failed:      make(map[workspace.Resource]error),
	}
	versions := make(map[string]uint64)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.jobs)
	for _, req := range mergeRequests(reqs) {
		req := req
		g.Go(func() error {
			annotations, version, err := e.reconcile(ctx, project, req)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Annotations[req.Resource] = annotations
				versions[string(req.Resource)] = version
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				report.Skipped = append(report.Skipped, req.Resource)
			default:
				e.logger.Warn("failed to reconcile file", "resource", req.Resource, "error", err)
				report.Failed[req.Resource] = &FileError{Resource: req.Resource, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(report.Skipped, func(i, j int) bool { return report.Skipped[i] < report.Skipped[j] })

	var err error
	if len(versions) > 0 {
		err = e.registry.Commit(project, versions, func(current []string) error {
			desired := make(map[workspace.Resource][]findings.TrackedAnnotation, len(current))
			for _, name := range current {
				res := workspace.Resource(name)
				desired[res] = report.Annotations[res]
			}
			for res := range report.Annotations {
				if _, ok := desired[res]; !ok {
					delete(report.Annotations, res)
					report.Superseded = append(report.Superseded, res)
				}
			}
			sort.Slice(report.Superseded, func(i, j int) bool { return report.Superseded[i] < report.Superseded[j] })
			if len(desired) == 0 {
				return nil
			}
			var applyErr error
			report.Applied, applyErr = e.applier.Apply(context.WithoutCancel(ctx), category, desired)
			return applyErr
		})
	}
	if err == nil {
		err = ctx.Err()
	}

	e.logger.Info("reconcile finished", "project", project, "category", category,
		"files", len(report.Annotations),
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
		"superseded", len(report.Superseded))
	return report, err
}

func (e *Engine) reconcile(ctx context.Context, project string, req Request) ([]findings.TrackedAnnotation, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	// without findings there is nothing to position, and the file may be gone
	var snap *position.Snapshot
	if len(req.Findings) > 0 {
		var err error
		snap, err = e.source.Snapshot(ctx, req.Resource)
		if err != nil {
			return nil, 0, err
		}
	}
	return e.registry.UpdateVersioned(ctx, project, string(req.Resource), func(previous []findings.TrackedAnnotation) ([]findings.TrackedAnnotation, error) {
		return e.tracker.Reconcile(previous, req.Findings, snap, string(req.Resource)), nil
	})
}

// mergeRequests folds requests for the same resource into one, keeping first-seen order.
func mergeRequests(reqs []Request) []Request {
	index := make(map[workspace.Resource]int, len(reqs))
	var out []Request
	for _, req := range reqs {
		if i, ok := index[req.Resource]; ok {
			out[i].Findings = append(out[i].Findings, req.Findings...)
			continue
		}
		index[req.Resource] = len(out)
		out = append(out, Request{
			Resource: req.Resource,
			Findings: append([]findings.Finding(nil), req.Findings...),
		})
	}
	return out
}

// Restore pushes the tracked state of project to the host, as when a workspace is reopened.
func (e *Engine) Restore(ctx context.Context, project, category string) (markers.Result, error) {
	var result markers.Result
	err := e.registry.Commit(project, nil, func([]string) error {
		resources, err := e.registry.Resources(ctx, project)
		if err != nil {
			return err
		}
		desired := make(map[workspace.Resource][]findings.TrackedAnnotation, len(resources))
		for _, res := range resources {
			anns, err := e.registry.Get(ctx, project, res)
			if err != nil {
				return err
			}
			desired[workspace.Resource(res)] = anns
		}
		if len(desired) == 0 {
			return nil
		}
		result, err = e.applier.Apply(ctx, category, desired)
		return err
	})
	return result, err
}

// Clear removes the tracked state and the markers of the given resources, or of every
// tracked resource of project when none is given.
func (e *Engine) Clear(ctx context.Context, project, category string, resources ...workspace.Resource) (markers.Result, error) {
	if len(resources) == 0 {
		names, err := e.registry.Resources(ctx, project)
		if err != nil {
			return markers.Result{}, err
		}
		for _, name := range names {
			resources = append(resources, workspace.Resource(name))
		}
	}

	names := make([]string, len(resources))
	for i, res := range resources {
		names[i] = string(res)
	}
	var result markers.Result
	err := e.registry.Commit(project, nil, func([]string) error {
		if len(names) > 0 {
			if err := e.registry.Clear(ctx, project, names...); err != nil {
				return err
			}
		}
		var err error
		result, err = e.applier.Clear(ctx, category, resources...)
		return err
	})
	return result, err
}
