package logging

import (
	"errors"
	"io"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// instrumentationScope names the OTEL logger the bridge emits under.
const instrumentationScope = "github.com/fyrsmithlabs/embedpipe"

// newOutputCore tees the console writer and the OTEL bridge, both redacted,
// then applies sampling to the result.
func newOutputCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	r, err := newRedactor(cfg.Redaction)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core

	if w := consoleWriter(cfg.Output); w != nil {
		enc := &RedactingEncoder{Encoder: newEncoder(cfg.Format), r: r}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(w), cfg.Level))
	}
	if cfg.Output.OTEL && otelProvider != nil {
		bridge := otelzap.NewCore(instrumentationScope, otelzap.WithLoggerProvider(otelProvider))
		cores = append(cores, &gatedCore{Core: withRedaction(bridge, r), allow: cfg.Level.Enabled})
	}

	switch len(cores) {
	case 0:
		return nil, errors.New("no log output available: console disabled and no OTEL provider")
	case 1:
		return newSampledCore(cores[0], cfg.Sampling), nil
	default:
		return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
	}
}

// consoleWriter returns stderr, stdout, or nil when console output is off.
func consoleWriter(out OutputConfig) io.Writer {
	switch {
	case out.Stderr:
		return os.Stderr
	case out.Stdout:
		return os.Stdout
	default:
		return nil
	}
}
