package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := New("shop-api", &buf)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Log(Fields{OrderID: "o-1", Step: "checkout", Status: "placed", DurationMS: 12})

	var got map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	assert.Equal(t, "shop-api", got["service"])
	assert.Equal(t, "o-1", got["order_id"])
	assert.Equal(t, "placed", got["status"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["timestamp"])
	assert.NotContains(t, got, "user_id")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Log(Fields{Message: "x"}) })
}
