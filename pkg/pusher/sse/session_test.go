package sse

import (
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_session_StreamEvents(t *testing.T) {
	// to make "go test -race" happy
	cancelIsCalled := atomic.Bool{}
	s := &session{
		eventCh: make(chan Event, 10),
		cancel: func() {
			cancelIsCalled.Store(true)
		},
		pingInterval: time.Second * 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	s.eventCh <- Event{EventID: 1, Data: []byte("hello")}
	s.eventCh <- Event{EventID: 2, Data: []byte("hello")}

	rec := httptest.NewRecorder()
	err := s.StreamEvents(ctx, rec)
	require.Nil(t, err)
	require.True(t, cancelIsCalled.Load())

	expectedBody := "event: message\nid: 1\ndata: hello\n\n" +
		"event: message\nid: 2\ndata: hello\n\n" +
		"event: heartbeat\n\n"
	require.Equal(t, expectedBody, rec.Body.String())
}

func Test_session_SendEvent_dropsWhenFull(t *testing.T) {
	s := &session{eventCh: make(chan Event, 1)}
	s.SendEvent(Event{EventID: 1})
	s.SendEvent(Event{EventID: 2})
	require.Len(t, s.eventCh, 1)
	require.Equal(t, int64(1), (<-s.eventCh).EventID)
}
