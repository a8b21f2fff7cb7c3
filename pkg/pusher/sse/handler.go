package sse

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/pusher/errors"
	"github.com/arnac-io/opensafeapi/pkg/pusher/events"
	"github.com/arnac-io/opensafeapi/pkg/pusher/sources"
)

// Handler handles http methods for sse.
type Handler struct {
	source         sources.SafeEventSource
	currentEventID int64
}

var safesPerRequestHistogramVec = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sse_safes_per_request",
		Buckets: []float64{1, 2, 3, 4, 5, 10, 20, 30, 40, 50, 100, 1000},
	},
	[]string{"method"},
)

type handlerFunc func(session *session, request *http.Request) error

func NewHandler(source sources.SafeEventSource) *Handler {
	return &Handler{
		source:         source,
		currentEventID: time.Now().UnixNano(),
	}
}

// ParseSafeEventsOptions reads "safes" (ALL or a comma separated list of
// addresses) and an optional "kinds" list.
func ParseSafeEventsOptions(safesStr string, kindsStr string) (*sources.SubscribeToSafeEventsOptions, error) {
	options := sources.SubscribeToSafeEventsOptions{}
	if strings.ToUpper(safesStr) == "ALL" {
		options.AllSafes = true
	} else {
		for _, s := range strings.Split(safesStr, ",") {
			if !common.IsHexAddress(s) {
				return nil, fmt.Errorf("invalid safe address '%v'", s)
			}
			options.Safes = append(options.Safes, common.HexToAddress(s))
		}
	}
	if len(kindsStr) > 0 {
		for _, k := range strings.Split(kindsStr, ",") {
			options.Kinds = append(options.Kinds, core.SafeEventKind(k))
		}
	}
	return &options, nil
}

func (h *Handler) SubscribeToSafeEvents(session *session, request *http.Request) error {
	if h.source == nil {
		return errors.BadRequest("safe event source is not configured")
	}
	query := request.URL.Query()
	options, err := ParseSafeEventsOptions(query.Get("safes"), query.Get("kinds"))
	if err != nil {
		return errors.BadRequest(fmt.Sprintf("failed to parse query parameters: %v", err))
	}
	if !options.AllSafes {
		safesPerRequestHistogramVec.WithLabelValues("safe_events").Observe(float64(len(options.Safes)))
	}
	cancelFn := h.source.SubscribeToSafeEvents(request.Context(), func(data []byte) {
		session.SendEvent(Event{
			Name:    events.SafeEvent,
			EventID: h.nextID(),
			Data:    data,
		})
	}, *options)
	session.SetCancelFn(cancelFn)
	return nil
}

// SafeEvents is the http.HandlerFunc for the safe events stream.
func (h *Handler) SafeEvents() http.HandlerFunc {
	return Stream(h.SubscribeToSafeEvents)
}

func (h *Handler) nextID() int64 {
	return atomic.AddInt64(&h.currentEventID, 1)
}
