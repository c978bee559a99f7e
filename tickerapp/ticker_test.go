package tickerapp

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/link"
	"github.com/micutio/aerosync/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCore struct {
	mu     sync.Mutex
	sweeps int
}

func (f *fakeCore) Tracks(track.Filter) []track.Track {
	return []track.Track{{ID: "4B1814", Callsign: "SWR100", Altitude: 30000, HasAltitude: true}}
}

func (f *fakeCore) Alerts() []alert.Alert {
	return []alert.Alert{{ID: "1", Category: alert.CategoryWeather}}
}

func (f *fakeCore) ExpireStale() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return []string{"OLD"}
}

func (f *fakeCore) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

// syncBuffer is a bytes.Buffer that can be written by the ticker and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTickerSweepsAndSummarizes(t *testing.T) {
	c := &fakeCore{}
	out := &syncBuffer{}
	tk := &ticker{
		core:            c,
		notify:          NewNotify(out),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		sweepInterval:   5 * time.Millisecond,
		summaryInterval: 20 * time.Millisecond,
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		tk.run(done)
	}()

	require.Eventually(t, func() bool {
		return c.sweepCount() >= 2 && strings.Contains(out.String(), "=== End Summary ===")
	}, 2*time.Second, time.Millisecond)

	close(done)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop")
	}
	assert.Contains(t, out.String(), "weather-warning")
}

func TestStatusFilterDropsRepeats(t *testing.T) {
	var seen []link.Status
	f := &statusFilter{next: func(s link.Status) { seen = append(seen, s) }}

	connected := link.Status{State: link.StateConnected, Connected: true}
	f.observe(connected)
	connected.LastHeartbeat = time.Now()
	f.observe(connected)
	f.observe(link.Status{State: link.StateReconnecting, ReconnectAttempts: 1})
	f.observe(link.Status{State: link.StateReconnecting, ReconnectAttempts: 2})
	f.observe(link.Status{State: link.StateDisconnected, Fatal: true})

	require.Len(t, seen, 4)
	assert.Equal(t, link.StateConnected, seen[0].State)
	assert.Equal(t, 2, seen[2].ReconnectAttempts)
	assert.True(t, seen[3].Fatal)
}
