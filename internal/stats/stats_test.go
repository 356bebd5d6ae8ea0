package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsUpdater(t *testing.T) {
	// expvar maps register globally, so the updater is built once per test
	// binary.
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.Run()
	defer su.Stop()

	// the channel drains in order, so once the last increment is visible the
	// earlier ones are too
	su.Incr(LiveSessions)
	su.Decr(LiveSessions)
	su.Incr(MessagesSent)
	su.Incr(MessagesSent)

	fetch := func() map[string]any {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var data map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&data))
		return data
	}

	assert.Eventually(t, func() bool {
		return fetch()[MessagesSent] == float64(2)
	}, time.Second, 10*time.Millisecond)

	data := fetch()
	assert.Equal(t, float64(0), data[LiveSessions])
	assert.Contains(t, data, "Uptime")

	// unregistered names are dropped, not created on the fly
	su.Incr("NoSuchMetric")
	assert.NotContains(t, fetch(), "NoSuchMetric")
}
