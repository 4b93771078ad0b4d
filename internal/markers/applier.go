// Package markers applies reconciled annotations to the host workspace.
package markers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-ide/internal/findings"
	"github.com/scan-io-git/scanio-ide/internal/workspace"
)

// Result summarizes one Apply or Clear call.
type Result struct {
	Applied   []workspace.Resource
	Failed    map[workspace.Resource]error
	// Partial lists the failed resources whose markers were already changed in part.
	// Those changes stay and are included in the counts below.
	Partial   []workspace.Resource
	Created   int
	Updated   int
	Deleted   int
	Cancelled bool
}

func (r *Result) fail(res workspace.Resource, err error) {
	if r.Failed == nil {
		r.Failed = make(map[workspace.Resource]error)
	}
	r.Failed[res] = err
}

// Applier writes annotation sets to a workspace store, one batch per call.
type Applier struct {
	store  workspace.Store
	logger hclog.Logger
}

// NewApplier creates an Applier. A nil logger discards output.
func NewApplier(store workspace.Store, logger hclog.Logger) *Applier {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Applier{store: store, logger: logger.Named("markers")}
}

// Apply replaces, for every resource of desired, the markers of category with the given
// annotations. All resources are written in a single batch so observers get one
// notification per call. Markers are matched to annotations by annotation ID: new IDs are
// created, IDs that are no longer desired are deleted and every kept ID is rewritten.
//
// A resource that fails is skipped and reported in Result.Failed. Markers it changed
// before the failure are not rolled back: they are counted and the resource is also listed
// in Result.Partial. When ctx is cancelled
// the resources already written stay written, the rest is not touched and ctx.Err() is
// returned.
func (a *Applier) Apply(ctx context.Context, category string, desired map[workspace.Resource][]findings.TrackedAnnotation) (Result, error) {
	var result Result
	err := a.store.Batch(ctx, func(tx workspace.Tx) error {
		for _, res := range sortedResources(desired) {
			if err := ctx.Err(); err != nil {
				result.Cancelled = true
				return err
			}
			touched := result.Created + result.Updated + result.Deleted
			if err := a.applyResource(tx, category, res, desired[res], &result); err != nil {
				partial := result.Created+result.Updated+result.Deleted > touched
				a.logger.Warn("failed to apply annotations", "resource", res, "partial", partial, "error", err)
				result.fail(res, err)
				if partial {
					result.Partial = append(result.Partial, res)
				}
				continue
			}
			result.Applied = append(result.Applied, res)
		}
		return nil
	})
	if err != nil && errors.Is(err, ctx.Err()) {
		result.Cancelled = true
	}

	a.logger.Debug("applied annotations", "category", category,
		"resources", len(result.Applied),
		"failed", len(result.Failed),
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted)
	return result, err
}

func (a *Applier) applyResource(tx workspace.Tx, category string, res workspace.Resource, annotations []findings.TrackedAnnotation, result *Result) error {
	existing, err := tx.Markers(res, category)
	if err != nil {
		return err
	}

	byID := make(map[string]workspace.MarkerID, len(existing))
	for _, m := range existing {
		id := findings.AnnotationID(m.Attributes)
		if _, dup := byID[id]; dup || id == "" {
			// stray marker without a usable identity
			if err := tx.Delete(m.ID); err != nil {
				return err
			}
			result.Deleted++
			continue
		}
		byID[id] = m.ID
	}

	keep := make(map[string]struct{}, len(annotations))
	for _, ann := range annotations {
		if ann.Resource == "" {
			ann.Resource = string(res)
		}
		rec, convErr := findings.ToRecord(category, ann)
		if convErr != nil {
			a.logger.Debug("annotation attributes omitted", "resource", res, "id", ann.ID, "error", convErr)
		}
		attrs := workspace.Attributes(rec.Attributes())
		keep[ann.ID] = struct{}{}

		if markerID, ok := byID[ann.ID]; ok {
			if err := tx.Update(markerID, attrs); err != nil {
				return fmt.Errorf("update marker %d: %w", markerID, err)
			}
			result.Updated++
			continue
		}
		if _, err := tx.Create(res, category, attrs); err != nil {
			return fmt.Errorf("create marker: %w", err)
		}
		result.Created++
	}

	for id, markerID := range byID {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := tx.Delete(markerID); err != nil {
			return fmt.Errorf("delete marker %d: %w", markerID, err)
		}
		result.Deleted++
	}
	return nil
}

// Clear deletes every marker of category from the given resources in one batch.
func (a *Applier) Clear(ctx context.Context, category string, resources ...workspace.Resource) (Result, error) {
	desired := make(map[workspace.Resource][]findings.TrackedAnnotation, len(resources))
	for _, res := range resources {
		desired[res] = nil
	}
	return a.Apply(ctx, category, desired)
}

func sortedResources(m map[workspace.Resource][]findings.TrackedAnnotation) []workspace.Resource {
	out := make([]workspace.Resource, 0, len(m))
	for res := range m {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
