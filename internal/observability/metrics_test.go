package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/auth/login", "POST", 200, time.Millisecond)
	m.RecordRequest("/auth/login", "POST", 200, time.Millisecond)
	m.RecordError("/auth/login", "POST", "UNAUTHORIZED")
	m.RecordLifecycle("session_revoked|logout", 1)
	m.RecordLifecycle("session_revoked|expired", 3)
	m.RecordLifecycle("ignored", 0)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/auth/login|POST|200"])
	assert.Equal(t, int64(1), snap.Errors["/auth/login|POST|UNAUTHORIZED"])
	assert.Equal(t, int64(3), snap.Lifecycle["session_revoked|expired"])
	assert.NotContains(t, snap.Lifecycle, "ignored")

	snap.Requests["/auth/login|POST|200"] = 99
	assert.Equal(t, int64(2), m.Snapshot().Requests["/auth/login|POST|200"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordError("/", "GET", "X")
	m.RecordLifecycle("x", 1)
	assert.Empty(t, m.Snapshot().Requests)
}
