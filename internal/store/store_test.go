package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/l0p7/usercheck/internal/metrics"
	"github.com/stretchr/testify/require"
)

func report(id string, ok bool) Entry {
	return Entry{ID: id, OK: ok, Report: json.RawMessage(fmt.Sprintf(`{"runId":%q}`, id))}
}

func exerciseStore(t *testing.T, s ReportStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Latest(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, report("r1", true)))
	require.NoError(t, s.Save(ctx, report("r2", false)))

	latest, ok, err := s.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r2", latest.ID)
	require.False(t, latest.OK)
	require.JSONEq(t, `{"runId":"r2"}`, string(latest.Report))
	require.False(t, latest.StoredAt.IsZero())

	first, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, first.OK)

	_, ok, err = s.Get(ctx, "absent")
	require.NoError(t, err)
	require.False(t, ok)

	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), size)

	require.Error(t, s.Save(ctx, Entry{}))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory(Options{TTL: time.Hour, History: 10})
	exerciseStore(t, s)
	require.NoError(t, s.Close(context.Background()))
}

func TestMemoryStoreHistoryBound(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(Options{History: 2})
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Save(ctx, report(fmt.Sprintf("r%d", i), true)))
	}
	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), size)

	_, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, report("r2", false)))
	latest, ok, err := s.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r2", latest.ID)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(Options{TTL: time.Minute}).(*memoryStore)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, report("r1", true)))
	_, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = s.Latest(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(Options{})
	entry := report("r1", true)
	require.NoError(t, s.Save(ctx, entry))
	entry.Report[0] = '['

	got, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"runId":"r1"}`, string(got.Report))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedis(RedisConfig{Address: mr.Addr()}, Options{TTL: time.Minute, History: 10})
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(context.Background())) }()

	exerciseStore(t, s)
	require.True(t, mr.Exists(defaultKeyPrefix+"r1"))
	require.Greater(t, mr.TTL(defaultKeyPrefix+"r1"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	size, err := s.Size(context.Background())
	require.NoError(t, err)
	require.Zero(t, size)
	_, ok, err := s.Latest(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreHistoryBound(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedis(RedisConfig{Address: mr.Addr(), KeyPrefix: "test:"}, Options{History: 2})
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(context.Background())) }()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Save(ctx, report(fmt.Sprintf("r%d", i), true)))
	}
	require.NoError(t, s.Save(ctx, report("r2", false)))

	ids, err := mr.List("test:index")
	require.NoError(t, err)
	require.Equal(t, []string{"r2", "r3"}, ids)
	require.Equal(t, time.Duration(0), mr.TTL("test:r3"))
	require.False(t, mr.Exists("test:r1"))

	_, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.False(t, ok)

	latest, ok, err := s.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r2", latest.ID)

	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), size)
	require.Len(t, mr.Keys(), 3)
}

func TestNewRedisRequiresAddress(t *testing.T) {
	_, err := NewRedis(RedisConfig{}, Options{})
	require.Error(t, err)
}

func TestNewRedisFailsWhenUnreachable(t *testing.T) {
	_, err := NewRedis(RedisConfig{Address: "127.0.0.1:1"}, Options{})
	require.Error(t, err)
}

func TestNewRedisMissingCAFile(t *testing.T) {
	_, err := NewRedis(RedisConfig{Address: "127.0.0.1:6379", TLS: RedisTLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"}}, Options{})
	require.ErrorContains(t, err, "read redis ca file")
}

func TestInstrumentRecordsOperations(t *testing.T) {
	rec := metrics.NewRecorder(nil)
	s := Instrument(NewMemory(Options{}), rec)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, report("r1", true)))
	_, _, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	_, _, err = s.Get(ctx, "missing")
	require.NoError(t, err)

	families, err := rec.Gatherer().Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "usercheck_store_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			counts[labels["operation"]+"/"+labels["result"]] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), counts["save/ok"])
	require.Equal(t, float64(1), counts["load/ok"])
	require.Equal(t, float64(1), counts["load/miss"])

	require.Same(t, s, Instrument(s, nil))
}
