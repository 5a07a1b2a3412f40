package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestFieldsReachCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromCore(core).Named("stat").With(String("descriptor", "se_e2_a"))

	l.Warn("sel too small",
		Ints("sel", []int{4, 8}),
		Int("ntypes", 2),
		Float64("ratio", 1.1),
		Bool("auto", true),
		Err(errors.New("boom")),
		Any("extra", map[string]int{"a": 1}),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "sel too small", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "stat", entry.LoggerName)
	ctx := entry.ContextMap()
	assert.Equal(t, "se_e2_a", ctx["descriptor"])
	assert.Equal(t, int64(2), ctx["ntypes"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestDefaultLogger(t *testing.T) {
	orig := L()
	t.Cleanup(func() { SetDefault(orig) })

	SetDefault(nil)
	assert.Equal(t, orig, L())

	core, logs := observer.New(zapcore.InfoLevel)
	SetDefault(NewFromCore(core))
	L().Info("hello")
	L().Debug("hidden")
	assert.Equal(t, 1, logs.Len())
}

func TestNop(t *testing.T) {
	n := Nop()
	assert.NotPanics(t, func() {
		n.Debug("x")
		n.With(Int("a", 1)).Named("b").Error("y", Err(nil))
	})
}
