package inventory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/scan"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func temperatureFact(chunks chunking.ChunkShape) chunking.VariableLayoutFact {
	return chunking.VariableLayoutFact{
		Name:        "temperature",
		Dimensions:  []string{"time", "lat", "lon"},
		Shape:       []uint64{48, 180, 360},
		Chunks:      chunks,
		Cache:       chunking.Cache{Bytes: 16 << 20, Slots: 4133, Preemption: 0.75, Available: true},
		Dtype:       "int16",
		Scale:       chunking.Some(0.01),
		Offset:      chunking.Some(273.15),
		Compression: "zlib",
		Level:       chunking.Some(4),
		Shuffle:     true,
		ReadTime:    chunking.Some(1500 * time.Microsecond),
	}
}

func latFact() chunking.VariableLayoutFact {
	return chunking.VariableLayoutFact{
		Name:        "lat",
		Dimensions:  []string{"lat"},
		Shape:       []uint64{180},
		Chunks:      chunking.Contiguous,
		Dtype:       "float32",
		Compression: chunking.CompressionNone,
		Coordinate:  true,
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	run, err := st.BeginRun(ctx, "/data/era5", "*.nc")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	a := scan.Result{File: "a.nc", Size: 100, Facts: []chunking.VariableLayoutFact{
		temperatureFact(chunking.MustChunkShape(1, 90, 180)), latFact(),
	}}
	b := scan.Result{File: "b.nc", Size: 200, Facts: []chunking.VariableLayoutFact{
		temperatureFact(chunking.MustChunkShape(2, 90, 90)), latFact(),
	}}
	bad := scan.Result{File: "c.nc", Err: &scan.ScanError{File: "c.nc", Err: chunking.ErrCorruptMetadata}}
	for _, r := range []scan.Result{a, b, bad} {
		require.NoError(t, st.Record(ctx, run.ID, r))
	}

	finished, err := st.FinishRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, finished.Files)
	assert.Equal(t, 1, finished.Failures)
	assert.False(t, finished.FinishedAt.IsZero())
	assert.Equal(t, "/data/era5", finished.Root)
	assert.Equal(t, "*.nc", finished.Pattern)

	results, err := st.Results(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, a, results[0])
	assert.Equal(t, b, results[1])
	assert.Equal(t, "c.nc", results[2].File)
	require.False(t, results[2].OK())
	assert.ErrorIs(t, results[2].Err, chunking.ErrCorruptMetadata)

	ix, failed, err := st.Index(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, chunking.NewFileSet("a.nc"), ix["temperature"][chunking.MustChunkShape(1, 90, 180)])
	assert.Equal(t, chunking.NewFileSet("a.nc", "b.nc"), ix["lat"][chunking.Contiguous])
}

func TestRunLookup(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	first, err := st.BeginRun(ctx, "/a", "*.nc")
	require.NoError(t, err)
	second, err := st.BeginRun(ctx, "/b", "*.nc")
	require.NoError(t, err)

	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.True(t, runs[0].FinishedAt.IsZero())

	got, err := st.Run(ctx, first.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = st.Run(ctx, "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = st.Run(ctx, "")
	assert.ErrorContains(t, err, "ambiguous")
	_, err = st.FinishRun(ctx, "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	run, err := st.BeginRun(ctx, "/a", "*.nc")
	require.NoError(t, err)

	r := scan.Result{File: "a.nc", Size: 1, Facts: []chunking.VariableLayoutFact{latFact()}}
	require.NoError(t, st.Record(ctx, run.ID, r))
	require.NoError(t, st.Record(ctx, run.ID, r))

	results, err := st.Results(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Facts, 1)
}

func TestRunsAreSeparate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	one, err := st.BeginRun(ctx, "/a", "*.nc")
	require.NoError(t, err)
	two, err := st.BeginRun(ctx, "/a", "*.nc")
	require.NoError(t, err)

	require.NoError(t, st.Record(ctx, one.ID, scan.Result{File: "a.nc", Facts: []chunking.VariableLayoutFact{latFact()}}))

	results, err := st.Results(ctx, two.ID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecordFileWithoutVariables(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	run, err := st.BeginRun(ctx, "/a", "*.nc")
	require.NoError(t, err)

	empty := scan.Result{File: "empty.nc", Size: 42}
	full := scan.Result{File: "full.nc", Size: 7, Facts: []chunking.VariableLayoutFact{latFact()}}
	require.NoError(t, st.Record(ctx, run.ID, empty))
	require.NoError(t, st.Record(ctx, run.ID, full))

	finished, err := st.FinishRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, finished.Files)
	assert.Zero(t, finished.Failures)

	results, err := st.Results(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, empty, results[0])
	assert.True(t, results[0].OK())
	assert.Equal(t, full, results[1])
}

func TestRecordReplacesEarlierOutcome(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	run, err := st.BeginRun(ctx, "/a", "*.nc")
	require.NoError(t, err)

	bad := scan.Result{File: "a.nc", Err: &scan.ScanError{File: "a.nc", Err: chunking.ErrCorruptMetadata}}
	good := scan.Result{File: "a.nc", Size: 3, Facts: []chunking.VariableLayoutFact{latFact()}}

	require.NoError(t, st.Record(ctx, run.ID, bad))
	require.NoError(t, st.Record(ctx, run.ID, good))
	results, err := st.Results(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []scan.Result{good}, results)

	require.NoError(t, st.Record(ctx, run.ID, bad))
	finished, err := st.FinishRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, finished.Files)
	assert.Equal(t, 1, finished.Failures)
}
