package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func TestShutdown(t *testing.T) {
	var order []string
	step := func(name string, err error) Closer {
		return Closer{Name: name, Close: func(ctx context.Context) error {
			_, hasDeadline := ctx.Deadline()
			require.True(t, hasDeadline)
			order = append(order, name)
			return err
		}}
	}
	errA, errB := errors.New("a"), errors.New("b")
	err := Shutdown(zap.NewNop(), step("server", errA), step("relayer", nil), step("db", errB))
	require.Equal(t, []string{"server", "relayer", "db"}, order)
	require.Equal(t, []error{errA, errB}, multierr.Errors(err))

	require.Nil(t, Shutdown(zap.NewNop(), step("ok", nil)))
}

func TestLogger(t *testing.T) {
	require.NotNil(t, Logger("DEBUG"))
	require.Panics(t, func() { Logger("LOUD") })
}
