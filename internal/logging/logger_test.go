package logging

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/embedpipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.NotNil(t, logger.zap)
	assert.Equal(t, cfg, logger.config)
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format must be")
}

func TestNewFromSettings(t *testing.T) {
	t.Run("stderr output for cli", func(t *testing.T) {
		logger, err := NewFromSettings(config.LoggingConfig{Level: "debug", Format: "console"}, true, nil)
		require.NoError(t, err)
		assert.True(t, logger.config.Output.Stderr)
		assert.False(t, logger.config.Output.Stdout)
		assert.Equal(t, zapcore.DebugLevel, logger.config.Level)
		assert.True(t, logger.Enabled(zapcore.DebugLevel))
	})

	t.Run("trace level", func(t *testing.T) {
		logger, err := NewFromSettings(config.LoggingConfig{Level: "trace"}, false, nil)
		require.NoError(t, err)
		assert.Equal(t, TraceLevel, logger.config.Level)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewFromSettings(config.LoggingConfig{Level: "loud"}, false, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{
		zap:    zap.New(core),
		config: NewDefaultConfig(),
	}

	ctx := WithSessionID(context.Background(), "sess_1")

	tests := []struct {
		name    string
		logFunc func()
		level   zapcore.Level
		message string
	}{
		{
			name:    "trace",
			logFunc: func() { logger.Trace(ctx, "trace message") },
			level:   TraceLevel,
			message: "trace message",
		},
		{
			name:    "debug",
			logFunc: func() { logger.Debug(ctx, "debug message") },
			level:   zapcore.DebugLevel,
			message: "debug message",
		},
		{
			name:    "info",
			logFunc: func() { logger.Info(ctx, "info message") },
			level:   zapcore.InfoLevel,
			message: "info message",
		},
		{
			name:    "warn",
			logFunc: func() { logger.Warn(ctx, "warn message") },
			level:   zapcore.WarnLevel,
			message: "warn message",
		},
		{
			name:    "error",
			logFunc: func() { logger.Error(ctx, "error message") },
			level:   zapcore.ErrorLevel,
			message: "error message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.logFunc()

			entries := observed.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.message, entries[0].Message)
			assert.Equal(t, "sess_1", entries[0].ContextMap()["session.id"])
		})
	}
}

func TestLogger_ChildLoggers(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("embeddings").With(zap.String("provider", "ollama"))

	child.Info(context.Background(), "probe ok")

	entries := tl.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "embeddings", entries[0].LoggerName)
	tl.AssertField(t, "probe ok", "provider", "ollama")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "trace", want: TraceLevel},
		{in: " TRACE ", want: TraceLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: "info", want: zapcore.InfoLevel},
		{in: "warn", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "nonsense", want: zapcore.InfoLevel, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSampling_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	cfg := SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(1e9),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 1, Thereafter: 0},
		},
	}
	logger := zap.New(newSampledCore(core, cfg))

	for i := 0; i < 5; i++ {
		logger.Info("repeated info")
		logger.Error("repeated error")
	}

	assert.Equal(t, 1, observed.FilterMessage("repeated info").Len())
	assert.Equal(t, 5, observed.FilterMessage("repeated error").Len())
}

func TestSampling_PerLevelRates(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	cfg := SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(1e9),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.DebugLevel: {Initial: 2, Thereafter: 0},
			zapcore.InfoLevel:  {Initial: 1, Thereafter: 0},
		},
	}
	logger := zap.New(newSampledCore(core, cfg))

	for i := 0; i < 5; i++ {
		logger.Debug("repeated debug")
		logger.Info("repeated info")
		logger.Warn("repeated warn")
	}

	assert.Equal(t, 2, observed.FilterMessage("repeated debug").Len())
	assert.Equal(t, 1, observed.FilterMessage("repeated info").Len())
	assert.Equal(t, 5, observed.FilterMessage("repeated warn").Len(), "levels without a rate are not sampled")
}

func TestSampling_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Same(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "trace", levelName(TraceLevel))
	assert.Equal(t, "debug", levelName(zapcore.DebugLevel))
	assert.Equal(t, "error", levelName(zapcore.ErrorLevel))
}

func TestTestLogger_Assertions(t *testing.T) {
	tl := NewTestLogger()
	tl.Trace(context.Background(), "request body", zap.Int("bytes", 12))

	tl.AssertLogged(t, TraceLevel, "request body")
	tl.AssertNotLogged(t, zapcore.InfoLevel, "request body")
	tl.AssertField(t, "request body", "bytes", 12)

	tl.Reset()
	assert.Empty(t, tl.All())
}
