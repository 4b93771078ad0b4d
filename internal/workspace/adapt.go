package workspace

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/scanio-ide/pkg/shared/files"
)

// ErrNotAdaptable is returned when no adapter of a chain accepts a reference.
var ErrNotAdaptable = errors.New("reference cannot be adapted to a resource")

// Adapter converts one kind of file reference into a workspace Resource. An adapter
// returns ok=false for references it does not handle so the next one can try.
type Adapter interface {
	Adapt(ref interface{}) (res Resource, ok bool, err error)
}

// AdapterChain tries its adapters in order and stops at the first one that handles the
// reference.
type AdapterChain []Adapter

// NewAdapterChain returns the default chain for a workspace rooted at root.
func NewAdapterChain(root string) AdapterChain {
	return AdapterChain{
		SarifLocationAdapter{Root: root},
		URIAdapter{Root: root},
		PathAdapter{Root: root},
	}
}

// Adapt returns the resource for ref.
func (c AdapterChain) Adapt(ref interface{}) (Resource, error) {
	for _, a := range c {
		res, ok, err := a.Adapt(ref)
		if err != nil {
			return "", err
		}
		if ok {
			return res, nil
		}
	}
	return "", fmt.Errorf("%w: %T", ErrNotAdaptable, ref)
}

// PathAdapter handles plain filesystem paths, absolute or relative to Root.
type PathAdapter struct {
	Root string
}

func (a PathAdapter) Adapt(ref interface{}) (Resource, bool, error) {
	p, ok := ref.(string)
	if !ok || hasScheme(p) {
		return "", false, nil
	}
	res, err := resourceFromPath(a.Root, filepath.FromSlash(p))
	return res, true, err
}

// URIAdapter handles file:// URIs. Other schemes are left to the rest of the chain.
type URIAdapter struct {
	Root string
}

func (a URIAdapter) Adapt(ref interface{}) (Resource, bool, error) {
	raw, ok := ref.(string)
	if !ok || !strings.HasPrefix(strings.ToLower(raw), "file:") {
		return "", false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", true, fmt.Errorf("parse uri %q: %w", raw, err)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	res, err := resourceFromPath(a.Root, filepath.FromSlash(p))
	return res, true, err
}

// SarifLocationAdapter handles the location types of a SARIF report.
type SarifLocationAdapter struct {
	Root string
}

func (a SarifLocationAdapter) Adapt(ref interface{}) (Resource, bool, error) {
	var artifact *sarif.ArtifactLocation
	switch v := ref.(type) {
	case *sarif.Location:
		if v != nil && v.PhysicalLocation != nil {
			artifact = v.PhysicalLocation.ArtifactLocation
		}
	case *sarif.PhysicalLocation:
		if v != nil {
			artifact = v.ArtifactLocation
		}
	case *sarif.ArtifactLocation:
		artifact = v
	default:
		return "", false, nil
	}

	if artifact == nil || artifact.URI == nil || strings.TrimSpace(*artifact.URI) == "" {
		return "", true, fmt.Errorf("%w: sarif location without artifact uri", ErrNotAdaptable)
	}
	uri := strings.TrimSpace(*artifact.URI)
	res, err := AdapterChain{URIAdapter{Root: a.Root}, PathAdapter{Root: a.Root}}.Adapt(uri)
	return res, true, err
}

func hasScheme(p string) bool {
	i := strings.Index(p, ":")
	// a single letter before the colon is a windows drive
	return i > 1 && !strings.ContainsAny(p[:i], `/\`)
}

func resourceFromPath(root, p string) (Resource, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotAdaptable)
	}
	if root == "" {
		return Resource(filepath.ToSlash(filepath.Clean(p))), nil
	}

	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	abs, err := files.EnsureWithinRoot(root, target)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", fmt.Errorf("%w: %q is the workspace root", ErrNotAdaptable, p)
	}
	return Resource(filepath.ToSlash(rel)), nil
}
