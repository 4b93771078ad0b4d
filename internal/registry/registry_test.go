package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-ide/internal/findings"
)

func appendOne(id string) UpdateFunc {
	return func(previous []findings.TrackedAnnotation) ([]findings.TrackedAnnotation, error) {
		return append(previous, findings.TrackedAnnotation{ID: id}), nil
	}
}

func TestUpdateIsAtomicPerResource(t *testing.T) {
	reg := New(NewMemory(), nil)
	reg.OpenProject("p")
	ctx := context.Background()

	const workers = 64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := fmt.Sprintf("file-%d.go", i%4)
			_, err := reg.Update(ctx, "p", res, appendOne(fmt.Sprintf("id-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 4; i++ {
		anns, err := reg.Get(ctx, "p", fmt.Sprintf("file-%d.go", i))
		require.NoError(t, err)
		assert.Len(t, anns, workers/4)
		total += len(anns)
	}
	assert.Equal(t, workers, total)
}

func TestProjectLifecycle(t *testing.T) {
	backend := NewMemory()
	reg := New(backend, nil)
	ctx := context.Background()

	_, err := reg.Update(ctx, "p", "a.go", appendOne("x"))
	assert.True(t, errors.Is(err, ErrProjectNotOpen))

	reg.OpenProject("p")
	reg.OpenProject("p")
	_, err = reg.Update(ctx, "p", "a.go", appendOne("x"))
	require.NoError(t, err)

	reg.CloseProject("p")
	_, err = reg.Get(ctx, "p", "a.go")
	assert.True(t, errors.Is(err, ErrProjectNotOpen))

	// state survives a close and reopen
	reg.OpenProject("p")
	anns, err := reg.Get(ctx, "p", "a.go")
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, "x", anns[0].ID)

	// projects do not see each other
	reg.OpenProject("q")
	anns, err = reg.Get(ctx, "q", "a.go")
	require.NoError(t, err)
	assert.Empty(t, anns)
	require.NoError(t, reg.Close())
}

func TestUpdateFailureKeepsState(t *testing.T) {
	reg := New(NewMemory(), nil)
	reg.OpenProject("p")
	ctx := context.Background()

	_, err := reg.Update(ctx, "p", "a.go", appendOne("x"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = reg.Update(ctx, "p", "a.go", func([]findings.TrackedAnnotation) ([]findings.TrackedAnnotation, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	anns, err := reg.Get(ctx, "p", "a.go")
	require.NoError(t, err)
	assert.Len(t, anns, 1)
}

func TestUpdateWithEmptySetRemovesResource(t *testing.T) {
	reg := New(NewMemory(), nil)
	reg.OpenProject("p")
	ctx := context.Background()

	_, err := reg.Update(ctx, "p", "a.go", appendOne("x"))
	require.NoError(t, err)
	_, err = reg.Update(ctx, "p", "a.go", func([]findings.TrackedAnnotation) ([]findings.TrackedAnnotation, error) {
		return nil, nil
	})
	require.NoError(t, err)

	resources, err := reg.Resources(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestUpdateHonoursCancellation(t *testing.T) {
	reg := New(NewMemory(), nil)
	reg.OpenProject("p")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := reg.Update(ctx, "p", "a.go", func(prev []findings.TrackedAnnotation) ([]findings.TrackedAnnotation, error) {
		called = true
		return prev, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestClear(t *testing.T) {
	reg := New(NewMemory(), nil)
	reg.OpenProject("p")
	ctx := context.Background()
	for _, res := range []string{"a.go", "b.go", "c.go"} {
		_, err := reg.Update(ctx, "p", res, appendOne(res))
		require.NoError(t, err)
	}

	require.NoError(t, reg.Clear(ctx, "p", "b.go"))
	resources, err := reg.Resources(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "c.go"}, resources)

	require.NoError(t, reg.Clear(ctx, "p"))
	resources, err = reg.Resources(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestCommitLeavesOutSupersededVersions(t *testing.T) {
	reg := New(NewMemory(), nil)
	reg.OpenProject("p")
	ctx := context.Background()

	_, older, err := reg.UpdateVersioned(ctx, "p", "a.go", appendOne("1"))
	require.NoError(t, err)
	_, newer, err := reg.UpdateVersioned(ctx, "p", "a.go", appendOne("2"))
	require.NoError(t, err)
	_, other, err := reg.UpdateVersioned(ctx, "p", "b.go", appendOne("3"))
	require.NoError(t, err)
	assert.Greater(t, newer, older)

	var got []string
	require.NoError(t, reg.Commit("p", map[string]uint64{"a.go": older, "b.go": other}, func(current []string) error {
		got = current
		return nil
	}))
	assert.Equal(t, []string{"b.go"}, got)

	require.NoError(t, reg.Commit("p", map[string]uint64{"a.go": newer}, func(current []string) error {
		got = current
		return nil
	}))
	assert.Equal(t, []string{"a.go"}, got)

	// clearing counts as a change, so sets taken before it are stale
	require.NoError(t, reg.Clear(ctx, "p", "a.go"))
	require.NoError(t, reg.Commit("p", map[string]uint64{"a.go": newer}, func(current []string) error {
		got = current
		return nil
	}))
	assert.Empty(t, got)

	err = reg.Commit("closed", nil, func([]string) error { return nil })
	assert.True(t, errors.Is(err, ErrProjectNotOpen))
}
