package track

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewRegistry(WithClock(clock.Now)), clock
}

func TestUpsertMergesFieldWise(t *testing.T) {
	reg, clock := newTestRegistry(t)

	first, created, err := reg.Upsert(Update{ID: "ABC123", Altitude: ptr(35000.0)})
	require.NoError(t, err)
	assert.True(t, created)
	assert.InDelta(t, 35000.0, first.Altitude, 1e-9)

	clock.Advance(time.Second)
	merged, created, err := reg.Upsert(Update{ID: "ABC123", Heading: ptr(270.0)})
	require.NoError(t, err)
	assert.False(t, created)

	assert.InDelta(t, 35000.0, merged.Altitude, 1e-9, "absent altitude keeps the previous value")
	assert.InDelta(t, 270.0, merged.Heading, 1e-9)
	assert.Equal(t, clock.Now(), merged.LastUpdate)
	assert.Equal(t, 1, reg.Len())
}

func TestUpsertAppliesUpdatesInArrivalOrder(t *testing.T) {
	reg, _ := newTestRegistry(t)

	updates := []Update{
		{ID: "X1", Callsign: ptr("DLH4AB"), Altitude: ptr(12000.0)},
		{ID: "X1", Altitude: ptr(14000.0), Velocity: ptr(310.0)},
		{ID: "X1", Callsign: ptr("DLH4AC")},
	}
	for _, u := range updates {
		_, _, err := reg.Upsert(u)
		require.NoError(t, err)
	}

	got, ok := reg.Get("X1")
	require.True(t, ok)
	assert.Equal(t, "DLH4AC", got.Callsign)
	assert.InDelta(t, 14000.0, got.Altitude, 1e-9)
	assert.InDelta(t, 310.0, got.Velocity, 1e-9)
}

func TestUpsertPosition(t *testing.T) {
	reg, _ := newTestRegistry(t)

	half, _, err := reg.Upsert(Update{ID: "P1", Latitude: ptr(51.47)})
	require.NoError(t, err)
	assert.False(t, half.HasPosition)

	full, _, err := reg.Upsert(Update{ID: "P1", Latitude: ptr(51.47), Longitude: ptr(-0.45)})
	require.NoError(t, err)
	assert.True(t, full.HasPosition)
}

func TestUpsertPositionFromSeparateUpdates(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, _, err := reg.Upsert(Update{ID: "P1", Latitude: ptr(51.47)})
	require.NoError(t, err)
	merged, _, err := reg.Upsert(Update{ID: "P1", Longitude: ptr(-0.45)})
	require.NoError(t, err)

	assert.InDelta(t, 51.47, merged.Latitude, 1e-9)
	assert.InDelta(t, -0.45, merged.Longitude, 1e-9)
	assert.True(t, merged.HasPosition)

	later, _, err := reg.Upsert(Update{ID: "P1", Altitude: ptr(3000.0)})
	require.NoError(t, err)
	assert.True(t, later.HasPosition, "the position stays known across updates without it")
}

func TestIdentityIsTrimmedEverywhere(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, _, err := reg.Upsert(Update{ID: " ABC123 ", Altitude: ptr(1000.0)})
	require.NoError(t, err)

	_, ok := reg.Get("ABC123 ")
	assert.True(t, ok)
	require.NoError(t, reg.Select("ABC123\t"))
	selected, ok := reg.Selected()
	require.True(t, ok)
	assert.Equal(t, "ABC123", selected.ID)

	removed, cleared := reg.Remove("ABC123 ")
	assert.True(t, removed)
	assert.True(t, cleared)
	assert.Zero(t, reg.Len())
}

func TestUpsertRejectsEmptyIdentity(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, _, err := reg.Upsert(Update{ID: "  ", Altitude: ptr(1.0)})
	require.ErrorIs(t, err, ErrEmptyIdentity)
	assert.Zero(t, reg.Len())
}

func TestSnapshotIsSortedCopy(t *testing.T) {
	reg, _ := newTestRegistry(t)

	for _, id := range []string{"C3", "A1", "B2"} {
		_, _, err := reg.Upsert(Update{ID: id, Altitude: ptr(1000.0)})
		require.NoError(t, err)
	}

	snapshot := reg.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "A1", snapshot[0].ID)
	assert.Equal(t, "B2", snapshot[1].ID)
	assert.Equal(t, "C3", snapshot[2].ID)

	snapshot[0].Altitude = 99999
	stored, _ := reg.Get("A1")
	assert.InDelta(t, 1000.0, stored.Altitude, 1e-9)
}

func TestRemove(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, _, err := reg.Upsert(Update{ID: "R1"})
	require.NoError(t, err)
	_, _, err = reg.Upsert(Update{ID: "R2"})
	require.NoError(t, err)

	removed, cleared := reg.Remove("R1")
	assert.True(t, removed)
	assert.False(t, cleared)

	for _, tr := range reg.Snapshot() {
		assert.NotEqual(t, "R1", tr.ID)
	}

	removed, _ = reg.Remove("R1")
	assert.False(t, removed, "removing twice is a no-op")
}

func TestRemoveClearsSelection(t *testing.T) {
	var notified []string
	reg := NewRegistry(WithSelectionListener(func(id string) { notified = append(notified, id) }))

	_, _, err := reg.Upsert(Update{ID: "S1"})
	require.NoError(t, err)
	require.NoError(t, reg.Select("S1"))

	selected, ok := reg.Selected()
	require.True(t, ok)
	assert.Equal(t, "S1", selected.ID)

	removed, cleared := reg.Remove("S1")
	assert.True(t, removed)
	assert.True(t, cleared)

	_, ok = reg.Selected()
	assert.False(t, ok)
	assert.Equal(t, []string{"S1"}, notified)
}

func TestSelectUnknownTrack(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.ErrorIs(t, reg.Select("nope"), ErrTrackNotFound)
}

func TestExpireStale(t *testing.T) {
	reg, clock := newTestRegistry(t)

	_, _, err := reg.Upsert(Update{ID: "OLD"})
	require.NoError(t, err)
	require.NoError(t, reg.Select("OLD"))

	clock.Advance(45 * time.Second)
	_, _, err = reg.Upsert(Update{ID: "NEW"})
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	expired := reg.ExpireStale(time.Minute)

	assert.Equal(t, []string{"OLD"}, expired)
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Selected()
	assert.False(t, ok, "expiring the selected track clears the selection")

	assert.Nil(t, reg.ExpireStale(0))
}

func TestConcurrentUpsertAndSnapshot(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				_, _, _ = reg.Upsert(Update{
					ID:        "C" + string(rune('A'+i)),
					Latitude:  ptr(float64(j)),
					Longitude: ptr(float64(j)),
				})
			}
		}()
	}

	for range 100 {
		for _, tr := range reg.Snapshot() {
			// a merge is never observed half-applied
			assert.InDelta(t, tr.Latitude, tr.Longitude, 1e-9)
		}
	}

	wg.Wait()
	assert.Equal(t, 4, reg.Len())
}
