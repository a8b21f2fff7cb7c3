package api

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/arnac-io/opensafeapi/pkg/blockchain"
	collectorpkg "github.com/arnac-io/opensafeapi/pkg/collector"
	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

var ErrRateLimit = errors.New("rate limit")

// statusError carries the HTTP status for errors detected by the handlers themselves.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string {
	return e.msg
}

func badRequest(format string, args ...any) error {
	return &statusError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &statusError{status: http.StatusNotFound, msg: fmt.Sprintf(format, args...)}
}

func statusCode(err error) int {
	var e *statusError
	switch {
	case errors.As(err, &e):
		return e.status
	case errors.Is(err, core.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimit), errors.Is(err, blockchain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, collectorpkg.ErrNotOwner), errors.Is(err, collectorpkg.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStaleNonce),
		errors.Is(err, core.ErrFutureNonce),
		errors.Is(err, core.ErrNotAuthorized),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, collectorpkg.ErrEmulationReverted),
		errors.Is(err, safe.ErrReverted):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError responds with {"error": "..."}.
func writeError(w http.ResponseWriter, status int, err error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.Str(err.Error())
	e.ObjEnd()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
