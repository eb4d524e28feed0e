package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSale_Logger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 4, 5, 6, 7, 891_234_567, time.FixedZone("X", 3600))
	require.Equal(t, "2026-03-04T04:06:07.891Z", formatRFC3339Millis(ts))
}

func TestSale_Logger_DropsEmptyStrings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, false, true)
	log.Info("campaign: stage started", "rate", 5, "note", "")

	out := buf.String()
	require.Contains(t, out, "campaign: stage started")
	require.Contains(t, out, "rate=5")
	require.NotContains(t, out, "note=")
}

func TestSale_Logger_VerboseEnablesDebug(t *testing.T) {
	t.Parallel()

	var quiet, loud bytes.Buffer
	NewWithWriter(&quiet, false, true).Debug("hidden")
	NewWithWriter(&loud, true, true).Debug("shown")

	require.Empty(t, quiet.String())
	require.Contains(t, loud.String(), "shown")
}
