package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/pusher/events"
	"github.com/arnac-io/opensafeapi/pkg/pusher/metrics"
	"github.com/arnac-io/opensafeapi/pkg/pusher/sources"
)

const subscriptionLimit = 1000 // limitation of subscription by connection

// session is a light-weight implementation of JSON-RPC protocol over an HTTP connection from a client.
type session struct {
	logger            *zap.Logger
	conn              *websocket.Conn
	source            sources.SafeEventSource
	eventCh           chan event
	subscriptions     map[common.Address]sources.CancelFn
	pingInterval      time.Duration
	subscriptionLimit int
}

type event struct {
	Name   events.Name
	Method string
	Params []byte
}

func newSession(logger *zap.Logger, source sources.SafeEventSource, conn *websocket.Conn) *session {
	return &session{
		logger:            logger,
		eventCh:           make(chan event, 1000),
		conn:              conn,
		source:            source,
		subscriptions:     map[common.Address]sources.CancelFn{},
		pingInterval:      5 * time.Second,
		subscriptionLimit: subscriptionLimit,
	}
}

func (s *session) cancel() {
	for _, cancelFn := range s.subscriptions {
		cancelFn()
	}
	metrics.WebsocketSubscriptions(-len(s.subscriptions))
	s.subscriptions = map[common.Address]sources.CancelFn{}
}

func (s *session) Run(ctx context.Context) chan JsonRPCRequest {
	requestCh := make(chan JsonRPCRequest)
	go func() {
		defer s.cancel()

		for {
			var err error
			select {
			case <-ctx.Done():
				return
			case e := <-s.eventCh:
				response := JsonRPCResponse{
					JSONRPC: "2.0",
					Method:  e.Method,
					Params:  e.Params,
				}
				metrics.WebsocketEventSent(e.Name)
				err = s.conn.WriteJSON(response)
			case request := <-requestCh:
				var response string
				switch request.Method {
				case "subscribe_safe":
					response = s.subscribeToSafes(ctx, request.Params)
				case "unsubscribe_safe":
					response = s.unsubscribeFromSafes(request.Params)
				default:
					response = fmt.Sprintf("unknown method '%v'", request.Method)
				}
				err = s.writeResponse(response, request)
			case <-time.After(s.pingInterval):
				metrics.WebsocketEventSent(events.PingEvent)
				err = s.conn.WriteMessage(websocket.PingMessage, []byte{})
			}
			if err != nil {
				s.logger.Debug("websocket session failed", zap.Error(err))
				return
			}
		}
	}()
	return requestCh
}

func (s *session) sendEvent(e event) {
	select {
	case s.eventCh <- e:
	default:
		s.logger.Warn("event channel is full, dropping event",
			zap.String("event", string(e.Name)))
	}
	metrics.WebsocketQueueLength(e.Name, len(s.eventCh))
}

type safeOptions struct {
	Safe  common.Address
	Kinds []core.SafeEventKind
}

// processSafeParam parses "<address>" or "<address>;kinds=<kind1>,<kind2>".
func processSafeParam(param string) (*safeOptions, error) {
	parts := strings.Split(param, ";")
	if len(parts) > 2 {
		return nil, fmt.Errorf("failed to process '%v' safe: invalid format", param)
	}
	if !common.IsHexAddress(parts[0]) {
		return nil, fmt.Errorf("failed to process '%v' safe: invalid address", param)
	}
	options := &safeOptions{Safe: common.HexToAddress(parts[0])}
	if len(parts) == 1 {
		return options, nil
	}
	kindParts := strings.Split(parts[1], "=")
	if len(kindParts) != 2 || strings.ToLower(kindParts[0]) != "kinds" {
		return nil, fmt.Errorf("failed to process '%v' safe: invalid format", param)
	}
	if len(kindParts[1]) == 0 {
		return options, nil
	}
	for _, kind := range strings.Split(kindParts[1], ",") {
		options.Kinds = append(options.Kinds, core.SafeEventKind(kind))
	}
	return options, nil
}

func (s *session) subscribeToSafes(ctx context.Context, params []string) string {
	safes := make(map[common.Address]safeOptions, len(params))
	for _, param := range params {
		options, err := processSafeParam(param)
		if err != nil {
			return err.Error()
		}
		safes[options.Safe] = *options
	}
	if len(s.subscriptions)+len(safes) > s.subscriptionLimit {
		return fmt.Sprintf("you have reached the limit of %v subscriptions", s.subscriptionLimit)
	}
	var counter int
	for address, options := range safes {
		if _, ok := s.subscriptions[address]; ok {
			continue
		}
		cancel := s.source.SubscribeToSafeEvents(ctx, func(eventData []byte) {
			s.sendEvent(event{
				Name:   events.SafeEvent,
				Method: "safe_event",
				Params: eventData,
			})
		}, sources.SubscribeToSafeEventsOptions{
			Safes: []common.Address{address},
			Kinds: options.Kinds,
		})
		s.subscriptions[address] = cancel
		counter += 1
	}
	metrics.WebsocketSubscriptions(counter)
	return fmt.Sprintf("success! %v new subscriptions created", counter)
}

func (s *session) unsubscribeFromSafes(params []string) string {
	var counter int
	for _, param := range params {
		if !common.IsHexAddress(param) {
			return fmt.Sprintf("failed to process '%v' safe: invalid address", param)
		}
		address := common.HexToAddress(param)
		if cancelFn, ok := s.subscriptions[address]; ok {
			cancelFn()
			delete(s.subscriptions, address)
			counter += 1
		}
	}
	metrics.WebsocketSubscriptions(-counter)
	return fmt.Sprintf("success! %v subscription(s) removed", counter)
}

func jsonRPCResponseMessage(message string, id uint64, jsonrpc, method string) (JsonRPCResponse, error) {
	mes, err := json.Marshal(message)
	if err != nil {
		return JsonRPCResponse{}, err
	}
	resp := JsonRPCResponse{
		ID:      id,
		JSONRPC: jsonrpc,
		Method:  method,
		Result:  mes,
	}
	return resp, nil
}

func (s *session) writeResponse(message string, request JsonRPCRequest) error {
	resp, err := jsonRPCResponseMessage(message, request.ID, request.JSONRPC, request.Method)
	if err != nil {
		return err
	}
	return s.conn.WriteJSON(resp)
}
