package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		Register(reg)
		Register(reg)
	})
}

func TestRecordLookup(t *testing.T) {
	before := testutil.ToFloat64(lookupsCounter.WithLabelValues(OutcomeNotFound))

	RecordLookup(OutcomeNotFound)
	RecordLookup(OutcomeNotFound)
	RecordLookup(OutcomeFound)

	assert.Equal(t, before+2, testutil.ToFloat64(lookupsCounter.WithLabelValues(OutcomeNotFound)))
}

func TestSetRegisteredRoutes(t *testing.T) {
	SetRegisteredRoutes(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(registeredRoutesGauge))

	SetRegisteredRoutes(5)
	assert.Equal(t, float64(5), testutil.ToFloat64(registeredRoutesGauge))
}

func TestRecordStorageFailure(t *testing.T) {
	before := testutil.ToFloat64(storageFailuresCounter.WithLabelValues("save"))
	RecordStorageFailure("save")
	assert.Equal(t, before+1, testutil.ToFloat64(storageFailuresCounter.WithLabelValues("save")))
}

func TestRecordRequestLatency(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(requestLatencies))

	RecordRequestLatency("/api/paths", "200", 3*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(requestLatencies, namespace+"_http_request_duration_seconds"))
}

func TestRecordSave(t *testing.T) {
	before := testutil.ToFloat64(savesCounter)
	RecordSave()
	assert.Equal(t, before+1, testutil.ToFloat64(savesCounter))
}
