package eventstore

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/metrics"
	"github.com/loykin/usagelog/internal/transport"
)

func bufferedGauge(t *testing.T, g prometheus.Gatherer) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "usagelog_buffer_records" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("usagelog_buffer_records not gathered")
	return 0
}

func TestBufferedGaugeTracksBufferUnderConcurrentFlush(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	s := New(transport.NewMemory())
	const writers, perWriter = 4, 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.Open(event.MoveImage, nil)
				assert.NoError(t, err)
			}
		}()
	}
	for f := 0; f < 2; f++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.Flush(context.Background())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(s.Len()), bufferedGauge(t, reg))

	_, err := s.Open(event.MoveImage, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(s.Len()), bufferedGauge(t, reg))
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, float64(0), bufferedGauge(t, reg))
}
