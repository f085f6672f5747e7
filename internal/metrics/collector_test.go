package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Observations(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := NewCollector("weft", reg)

	c.ObserveRun("pipeline", "completed", 2*time.Second)
	c.ObserveRun("pipeline", "failed", time.Second)
	c.ObserveStep("pipeline", "completed")
	c.ObserveStep("pipeline", "skipped")
	c.ObserveAdapterCall("ollama", 300*time.Millisecond)
	c.ObserveTokens("ollama", 100, 40)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("pipeline", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("pipeline", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.stepsTotal.WithLabelValues("pipeline", "skipped")))
	assert.Equal(t, float64(100), testutil.ToFloat64(c.tokensUsed.WithLabelValues("ollama", "prompt")))
	assert.Equal(t, float64(40), testutil.ToFloat64(c.tokensUsed.WithLabelValues("ollama", "completion")))
}

func TestCollector_ZeroTokensNotCounted(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := NewCollector("weft", reg)

	c.ObserveTokens("tgi", 0, 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		assert.NotEqual(t, "weft_tokens_used_total", f.GetName())
	}
}
