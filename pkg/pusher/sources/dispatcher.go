package sources

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/arnac-io/opensafeapi/pkg/core"
)

type subscriberID int64

type subscriber struct {
	fn    DeliveryFn
	kinds []core.SafeEventKind
}

func (s subscriber) deliver(kind core.SafeEventKind, eventData []byte) {
	if len(s.kinds) > 0 && !slices.Contains(s.kinds, kind) {
		return
	}
	s.fn(eventData)
}

// Dispatcher implements the fan-out pattern reading a SafeEvent from a single channel
// and delivering it to the subscribers of its safe.
type Dispatcher struct {
	logger *zap.Logger
	ch     chan core.SafeEvent

	mu       sync.RWMutex
	safes    map[common.Address]map[subscriberID]subscriber
	allSafes map[subscriberID]subscriber
	options  map[subscriberID]SubscribeToSafeEventsOptions
	// currentID is the ID of the next subscriber.
	currentID subscriberID
}

var _ SafeEventSource = (*Dispatcher)(nil)

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:    logger,
		ch:        make(chan core.SafeEvent, 100),
		safes:     map[common.Address]map[subscriberID]subscriber{},
		allSafes:  map[subscriberID]subscriber{},
		options:   map[subscriberID]SubscribeToSafeEventsOptions{},
		currentID: 1,
	}
}

// Run runs a dispatching loop in a dedicated goroutine.
func (disp *Dispatcher) Run(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-disp.ch:
				disp.logger.Debug("handling safe event",
					zap.Stringer("safe", event.Safe),
					zap.String("kind", string(event.Kind)))
				disp.dispatch(&event)
			}
		}
	}()
}

// Publish queues event for delivery. Events are dropped when the queue is full.
func (disp *Dispatcher) Publish(event core.SafeEvent) {
	select {
	case disp.ch <- event:
	default:
		disp.logger.Warn("dispatcher queue is full, dropping event",
			zap.Stringer("safe", event.Safe),
			zap.String("kind", string(event.Kind)))
	}
}

func (disp *Dispatcher) dispatch(event *core.SafeEvent) {
	eventData, err := json.Marshal(event)
	if err != nil {
		disp.logger.Error("json.Marshal() failed", zap.Error(err))
		return
	}
	disp.mu.RLock()
	defer disp.mu.RUnlock()
	for _, s := range disp.allSafes {
		s.deliver(event.Kind, eventData)
	}
	for _, s := range disp.safes[event.Safe] {
		s.deliver(event.Kind, eventData)
	}
}

func (disp *Dispatcher) SubscribeToSafeEvents(ctx context.Context, fn DeliveryFn, opts SubscribeToSafeEventsOptions) CancelFn {
	disp.logger.Debug("subscribe to safe events",
		zap.Bool("all-safes", opts.AllSafes),
		zap.Stringers("safes", opts.Safes))
	return disp.registerSubscriber(fn, opts)
}

func (disp *Dispatcher) registerSubscriber(fn DeliveryFn, opts SubscribeToSafeEventsOptions) CancelFn {
	disp.mu.Lock()
	defer disp.mu.Unlock()

	id := disp.currentID
	disp.currentID += 1
	disp.options[id] = opts
	s := subscriber{fn: fn, kinds: opts.Kinds}
	if opts.AllSafes {
		disp.allSafes[id] = s
		return func() { disp.unsubscribe(id) }
	}
	for _, address := range opts.Safes {
		subscribers, ok := disp.safes[address]
		if !ok {
			subscribers = map[subscriberID]subscriber{}
			disp.safes[address] = subscribers
		}
		subscribers[id] = s
	}
	return func() { disp.unsubscribe(id) }
}

func (disp *Dispatcher) unsubscribe(id subscriberID) {
	disp.mu.Lock()
	defer disp.mu.Unlock()

	options, ok := disp.options[id]
	if !ok {
		return
	}
	delete(disp.options, id)
	if options.AllSafes {
		delete(disp.allSafes, id)
		return
	}
	for _, address := range options.Safes {
		subscribers, ok := disp.safes[address]
		if !ok {
			continue
		}
		delete(subscribers, id)
		if len(subscribers) == 0 {
			delete(disp.safes, address)
		}
	}
}
