package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMustRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}

func TestCounters(t *testing.T) {
	ObserveJob("completed", "slideshow", 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(jobsTotal.WithLabelValues("completed", "slideshow")))

	IncPollTick("busy")
	IncPollTick("busy")
	assert.Equal(t, 2.0, testutil.ToFloat64(pollTicks.WithLabelValues("busy")))

	IncSlot("failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(bulkSlots.WithLabelValues("failed")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "error", statusClass(0))
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(503))
}
