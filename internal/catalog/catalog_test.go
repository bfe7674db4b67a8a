package catalog_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nutribot/internal/catalog"
	"github.com/edgard/nutribot/internal/database"
)

type countingSource struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingSource) TopCatalogByUsage(_ context.Context, kind database.CatalogKind, limit int) ([]database.CatalogItem, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return []database.CatalogItem{
		{ID: 1, Kind: kind, Name: "Arroz Branco", NormalizedName: "arroz branco", CompactName: "arrozbranco"},
		{ID: 2, Kind: kind, Name: "Feijão", NormalizedName: "feijao", CompactName: "feijao"},
	}, nil
}

func TestCacheTTLAndInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &countingSource{}
	cache := catalog.NewCache(src, time.Minute, 200, nil)

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	cache.SetClock(func() time.Time { return now })

	snap, err := cache.Snapshot(ctx, database.KindFood)
	require.NoError(t, err)
	require.Len(t, snap.Candidates, 2)
	assert.Equal(t, "arrozbranco", snap.Candidates[0].Compact)
	assert.Equal(t, "feijao", snap.Candidates[1].Spaced)

	_, err = cache.Snapshot(ctx, database.KindFood)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = cache.Snapshot(ctx, database.KindFood)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())

	cache.Invalidate(database.KindFood)
	_, err = cache.Snapshot(ctx, database.KindFood)
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())

	_, err = cache.Snapshot(ctx, database.KindExercise)
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.Snapshot(ctx, database.KindExercise)
	require.NoError(t, err)
	assert.Equal(t, int32(5), src.calls.Load())
}

func TestCacheCollapsesConcurrentLoads(t *testing.T) {
	t.Parallel()
	src := &countingSource{delay: 50 * time.Millisecond}
	cache := catalog.NewCache(src, time.Minute, 200, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Snapshot(context.Background(), database.KindFood)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCacheLoadError(t *testing.T) {
	t.Parallel()
	src := &countingSource{err: errors.New("db down")}
	cache := catalog.NewCache(src, time.Minute, 200, nil)

	_, err := cache.Snapshot(context.Background(), database.KindFood)
	require.Error(t, err)

	// Failures are not cached.
	_, err = cache.Snapshot(context.Background(), database.KindFood)
	require.Error(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

type memWriter struct {
	items []*database.CatalogItem
}

func (w *memWriter) UpsertCatalogItem(_ context.Context, item *database.CatalogItem) error {
	w.items = append(w.items, item)
	return nil
}

func TestParseSeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "Valid",
			doc: `
foods:
  - name: Arroz
    calories: 130
    measures: {colher: 25}
exercises:
  - name: Corrida
    met_moderate: 8
`,
		},
		{name: "Food without name", doc: "foods:\n  - calories: 10\n", wantErr: true},
		{name: "Exercise without MET", doc: "exercises:\n  - name: Yoga\n", wantErr: true},
		{name: "Unknown field", doc: "foods:\n  - name: Arroz\n    kcal: 1\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := catalog.ParseSeed(strings.NewReader(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSeedApplyDefaults(t *testing.T) {
	t.Parallel()
	seed, err := catalog.ParseSeed(strings.NewReader(`
foods:
  - name: Arroz
    calories: 130
exercises:
  - name: Corrida
    met_moderate: 8
`))
	require.NoError(t, err)

	w := &memWriter{}
	n, err := seed.Apply(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 100.0, w.items[0].ServingGrams, 1e-9)
	assert.Equal(t, 30, w.items[1].DefaultMinutes)
	assert.Equal(t, database.KindExercise, w.items[1].Kind)
}

func TestDefaultSeed(t *testing.T) {
	t.Parallel()
	seed, err := catalog.DefaultSeed()
	require.NoError(t, err)
	assert.NotEmpty(t, seed.Foods)
	assert.NotEmpty(t, seed.Exercises)

	for _, f := range seed.Foods {
		assert.NotEmpty(t, f.Name)
		assert.Positive(t, f.ServingGrams, f.Name)
	}
}
