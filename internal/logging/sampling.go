package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples every configured level with its own rate.
// Error and above, and levels without a rate, are written unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	tick := cfg.Tick.Duration()
	sampled := make(map[zapcore.Level]bool, len(cfg.Levels))
	cores := make([]zapcore.Core, 0, len(cfg.Levels)+1)

	for lvl, rate := range cfg.Levels {
		if lvl >= zapcore.ErrorLevel {
			continue
		}
		sampled[lvl] = true
		only := lvl
		cores = append(cores, zapcore.NewSamplerWithOptions(
			&gatedCore{Core: core, allow: func(l zapcore.Level) bool { return l == only }},
			tick, rate.Initial, rate.Thereafter,
		))
	}

	cores = append(cores, &gatedCore{Core: core, allow: func(l zapcore.Level) bool { return !sampled[l] }})
	return zapcore.NewTee(cores...)
}

// gatedCore passes through only the levels allow accepts.
type gatedCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (c *gatedCore) Enabled(lvl zapcore.Level) bool {
	return c.allow(lvl) && c.Core.Enabled(lvl)
}

func (c *gatedCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.allow(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *gatedCore) With(fields []zapcore.Field) zapcore.Core {
	return &gatedCore{Core: c.Core.With(fields), allow: c.allow}
}
