package app

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	shutdownTimeout = time.Second * 5
)

func Logger(level string) *zap.Logger {

	cfg := zap.NewProductionConfig()

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		panic(err)
	}
	cfg.Level.SetLevel(lvl)

	lg, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return lg
}

// Closer is a named shutdown step.
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// Shutdown runs the steps in order, each bounded by the shared timeout, and
// returns every failure.
func Shutdown(logger *zap.Logger, closers ...Closer) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var err error
	for _, c := range closers {
		if cerr := c.Close(ctx); cerr != nil {
			logger.Error("shutdown step failed", zap.String("step", c.Name), zap.Error(cerr))
			err = multierr.Append(err, cerr)
		}
	}
	return err
}
