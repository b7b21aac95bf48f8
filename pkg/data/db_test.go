package data

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mchmarny/sfi/pkg/fusion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), DriverSQLite, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecords() []fusion.DistanceRecord {
	return []fusion.DistanceRecord{
		{ImageUID: "img2", ImagePath: "/e/b.png", Style: "Chinese_Baroque", StyleAbbrev: "Ch-BAR", Metric: "Str_SSIM-D", DC: 0.3, DW: math.NaN()},
		{ImageUID: "img1", ImagePath: "/e/a.png", Style: "Chinese_Baroque", StyleAbbrev: "Ch-BAR", Metric: "Str_SSIM-D", DC: 0.1, DW: 0.2},
		{ImageUID: "img1", ImagePath: "/e/a.png", Style: "Chinese_Baroque", StyleAbbrev: "Ch-BAR", Metric: "Col_HSV-B", DC: 0.4, DW: 0.5},
	}
}

func TestOpen_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	s, err := Open(context.Background(), "", dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.Equal(t, DriverSQLite, s.Driver())

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), DriverSQLite, "")
	assert.Error(t, err)

	_, err = Open(context.Background(), "mysql", "x")
	assert.Error(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), DriverSQLite, dbPath)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}

func TestRebind(t *testing.T) {
	s := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", s.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	s.driver = DriverSQLite
	assert.Equal(t, "x = ?", s.rebind("x = ?"))
}

func TestNilStore(t *testing.T) {
	var s *Store
	ctx := context.Background()
	_, err := s.SaveRun(ctx, Run{}, nil)
	assert.ErrorIs(t, err, errDBNotInitialized)
	_, err = s.ListRuns(ctx, 1)
	assert.ErrorIs(t, err, errDBNotInitialized)
	assert.ErrorIs(t, s.DeleteAll(ctx), errDBNotInitialized)
	assert.NoError(t, s.Close())
}

func exerciseStore(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	first, err := s.SaveRun(ctx, Run{EvalSet: "/e", RefC: "/c", ImageSize: 512, PowerMeanP: 0.55,
		CreatedAt: time.Now().Add(-time.Hour)}, testRecords()[:1])
	require.NoError(t, err)

	id, err := s.SaveRun(ctx, Run{EvalSet: "/e", RefC: "/c", RefW: "/w", ImageSize: 512, PowerMeanP: 0.55, Notes: "n"}, testRecords())
	require.NoError(t, err)
	assert.NotEqual(t, first, id)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, 3, runs[0].Distances)
	assert.Equal(t, "/w", runs[0].RefW)
	assert.Equal(t, 0.55, runs[0].PowerMeanP)
	assert.Equal(t, first, runs[1].ID)

	latest, err := s.LatestRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, latest)

	dist, err := s.GetDistances(ctx, id, "")
	require.NoError(t, err)
	require.Len(t, dist, 3)
	assert.Equal(t, "img1", dist[0].ImageUID)
	assert.Equal(t, "Col_HSV-B", dist[0].Metric)
	assert.Equal(t, 0.5, dist[0].DW)
	assert.Equal(t, "img2", dist[2].ImageUID)
	assert.True(t, math.IsNaN(dist[2].DW))

	ssim, err := s.GetDistances(ctx, id, "Str_SSIM-D")
	require.NoError(t, err)
	assert.Len(t, ssim, 2)

	_, err = s.GetDistances(ctx, "nope", "")
	assert.ErrorIs(t, err, ErrRunNotFound)

	keys := []fusion.KeyNumber{
		{Key: fusion.KeyImages, Value: 2},
		{Key: fusion.KeyMFSMean, Value: math.NaN()},
		{Key: fusion.KeyAbsDiffMax, Value: 0.01},
	}
	require.NoError(t, s.SaveKeyNumbers(ctx, id, keys))
	keys[0].Value = 3
	require.NoError(t, s.SaveKeyNumbers(ctx, id, keys))

	got, err := s.GetKeyNumbers(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, fusion.KeyImages, got[0].Key)
	assert.Equal(t, 3.0, got[0].Value)
	assert.True(t, math.IsNaN(got[1].Value))
	assert.Equal(t, fusion.KeyAbsDiffMax, got[2].Key)

	assert.ErrorIs(t, s.SaveKeyNumbers(ctx, "nope", keys), ErrRunNotFound)

	require.NoError(t, s.DeleteAll(ctx))
	runs, err = s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	_, err = s.LatestRunID(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_SQLite(t *testing.T) {
	exerciseStore(t, setupTestStore(t))
}

func TestSaveRun_RollsBackOnDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	recs := testRecords()
	recs = append(recs, recs[0])

	_, err := s.SaveRun(ctx, Run{EvalSet: "/e", RefC: "/c"}, recs)
	require.Error(t, err)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
