package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/chatflow/internal/session"
)

func TestRecordFlowTransition(t *testing.T) {
	before := testutil.ToFloat64(flowTransitionsTotal.WithLabelValues("booking", "none", "SELECT"))

	RecordFlowTransition("booking", "", "SELECT")

	after := testutil.ToFloat64(flowTransitionsTotal.WithLabelValues("booking", "none", "SELECT"))
	assert.Equal(t, before+1, after)
}

func TestRecordUpdate(t *testing.T) {
	before := testutil.ToFloat64(updatesTotal.WithLabelValues("text", "none", "ok"))

	RecordUpdate("text", "", "ok", 10*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(updatesTotal.WithLabelValues("text", "none", "ok")))
}

func TestRecordError(t *testing.T) {
	before := testutil.ToFloat64(errorsTotal.WithLabelValues("unknown", "high"))
	RecordError("", "high")
	assert.Equal(t, before+1, testutil.ToFloat64(errorsTotal.WithLabelValues("unknown", "high")))
}

func TestSessionCollector_Collect(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	inFlow := session.New()
	inFlow.SetFlow("booking", "PHONE")
	require.NoError(t, store.Set(ctx, "1", inFlow))
	require.NoError(t, store.Set(ctx, "2", inFlow))

	idle := session.New()
	idle.Set("lang", "en")
	require.NoError(t, store.Set(ctx, "3", idle))

	require.NoError(t, NewSessionCollector(store, nil, time.Minute).Collect(ctx))

	assert.Equal(t, float64(3), testutil.ToFloat64(activeSessions))
	assert.Equal(t, float64(2), testutil.ToFloat64(sessionsByFlow.WithLabelValues("booking", "PHONE")))
}
