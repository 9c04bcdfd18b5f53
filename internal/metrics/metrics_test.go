package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePoll(t *testing.T) {
	m := New()
	m.ObservePoll("active", true, time.Second)
	m.ObservePoll("active", false, 3*time.Second)
	m.ObservePoll("passive", true, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polls.WithLabelValues("active", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polls.WithLabelValues("active", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polls.WithLabelValues("passive", "ok")))
}

func TestObserveRestartAndCommand(t *testing.T) {
	m := New()
	m.ObserveRestart(nil)
	m.ObserveRestart(errors.New("exit 1"))
	m.ObserveCommand("set_watering_thresholds", "dispatched")
	m.ObserveCommand("", "skipped")
	m.ObserveCommand("reboot", "skipped")
	m.ObserveCommand("x-7f3a", "skipped")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restarts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restarts.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Commands.WithLabelValues("unknown", "skipped")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Commands), "arbitrary command names must not add series")
}

func TestHandler_Exposes(t *testing.T) {
	m := New()
	m.LinkRate.Set(0.7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "sensord_link_success_rate 0.7"), body)
}
