package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/metrics"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleThresholds() model.ThresholdSet {
	return model.ThresholdSet{
		Warning:   model.Threshold{Level: model.LevelWarning, Percentage: 75, Amount: 7.5},
		Critical:  model.Threshold{Level: model.LevelCritical, Percentage: 90, Amount: 9},
		Emergency: model.Threshold{Level: model.LevelEmergency, Percentage: 100, Amount: 10},
	}
}

func TestRecorder_Observe(t *testing.T) {
	r := metrics.NewRecorder()
	results := []model.ActionResult{
		{Status: model.StatusSuccess},
		{Status: model.StatusFailed},
		{Status: model.StatusSuccess},
	}

	r.Observe(9.5, 10, 95, model.LevelCritical, sampleThresholds(), results)

	assert.Equal(t, 9.5, testutil.ToFloat64(r.Spend))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.Budget))
	assert.Equal(t, 95.0, testutil.ToFloat64(r.PercentUsed))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.AlertLevel))
	assert.Equal(t, 9.0, testutil.ToFloat64(r.Thresholds.WithLabelValues("critical")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ActionResults.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ActionResults.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.ActionResults.WithLabelValues("timeout")))
	assert.Greater(t, testutil.ToFloat64(r.LastSuccess), 0.0)
}

func TestRecorder_Push(t *testing.T) {
	var method, path, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := metrics.NewRecorder()
	r.Observe(8, 10, 80, model.LevelWarning, sampleThresholds(), nil)

	err := r.Push(context.Background(), server.URL, "aws_budget_guardian")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/aws_budget_guardian", path)
	assert.NotEmpty(t, body)
}

func TestRecorder_PushFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	r := metrics.NewRecorder()
	err := r.Push(context.Background(), server.URL, "job")
	assert.Error(t, err)
}
