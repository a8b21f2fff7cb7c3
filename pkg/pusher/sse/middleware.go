package sse

import (
	"encoding/json"
	"net/http"

	"github.com/arnac-io/opensafeapi/pkg/pusher/errors"
	"github.com/arnac-io/opensafeapi/pkg/pusher/metrics"
)

func writeError(writer http.ResponseWriter, err error) {
	var httpErr errors.HTTPError
	if errors.IsHTTPError(err) {
		httpErr = err.(errors.HTTPError)
	} else {
		httpErr = errors.InternalServerError(err.Error())
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(httpErr.Code)
	_ = json.NewEncoder(writer).Encode(httpErr)
}

// Stream turns a subscription handler into an http.HandlerFunc streaming server-sent events.
func Stream(handler handlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if _, ok := writer.(http.Flusher); !ok {
			writeError(writer, errors.InternalServerError("streaming unsupported"))
			return
		}
		session := newSession()
		if err := handler(session, request); err != nil {
			writeError(writer, err)
			return
		}
		writer.Header().Set("Content-Type", "text/event-stream")
		writer.Header().Set("Cache-Control", "no-cache")
		writer.Header().Set("Connection", "keep-alive")
		writer.WriteHeader(http.StatusOK)

		metrics.OpenSseConnection()
		defer metrics.CloseSseConnection()
		// the response has started, an error here only means the client went away
		_ = session.StreamEvents(request.Context(), writer)
	}
}
