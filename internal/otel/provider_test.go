package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
	otellog "go.opentelemetry.io/otel/log"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(config.OTelConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutExporter(t *testing.T) {
	_, err := New(config.OTelConfig{Enabled: true, ServiceName: "missioncontrol"}, nil)
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(config.OTelConfig{
		Enabled:      true,
		ServiceName:  "missioncontrol",
		BatchTimeout: time.Second,
	}, &buf)
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	var rec otellog.Record
	rec.SetBody(otellog.StringValue("state changed"))
	p.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "state changed")
	assert.Contains(t, buf.String(), "missioncontrol")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestMeter_NotNil(t *testing.T) {
	p, err := New(config.OTelConfig{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, p.Meter("missioncontrol"))
}
