package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Events(t *testing.T) {
	c := NewCollector()

	initial := testutil.ToFloat64(eventsIngested.WithLabelValues("click"))
	c.EventIngested("click")
	c.EventIngested("click")
	assert.Equal(t, initial+2, testutil.ToFloat64(eventsIngested.WithLabelValues("click")))

	rejected := testutil.ToFloat64(eventsRejected.WithLabelValues("validation"))
	c.EventRejected("validation")
	assert.Equal(t, rejected+1, testutil.ToFloat64(eventsRejected.WithLabelValues("validation")))
}

func TestCollector_Adaptation(t *testing.T) {
	c := NewCollector()

	applied := testutil.ToFloat64(adaptations.WithLabelValues("applied"))
	gated := testutil.ToFloat64(adaptations.WithLabelValues("gated"))

	c.Adaptation(true)
	c.Adaptation(false)
	c.Adaptation(false)

	assert.Equal(t, applied+1, testutil.ToFloat64(adaptations.WithLabelValues("applied")))
	assert.Equal(t, gated+2, testutil.ToFloat64(adaptations.WithLabelValues("gated")))
}

func TestCollector_AnalysisAndQueue(t *testing.T) {
	c := NewCollector()

	ok := testutil.ToFloat64(analysisRuns.WithLabelValues("ok"))
	c.AnalysisCompleted("ok", 25*time.Millisecond)
	assert.Equal(t, ok+1, testutil.ToFloat64(analysisRuns.WithLabelValues("ok")))

	c.QueueDepth(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(queueDepth))

	c.AdvisoryCall("fallback")
	assert.GreaterOrEqual(t, testutil.ToFloat64(advisoryCalls.WithLabelValues("fallback")), float64(1))

	assert.GreaterOrEqual(t, c.Uptime(), time.Duration(0))
}
