package sources

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arnac-io/opensafeapi/pkg/core"
)

type SubscribeToSafeEventsOptions struct {
	AllSafes bool
	Safes    []common.Address
	// Kinds limits delivered events. Empty means every kind.
	Kinds []core.SafeEventKind
}

// DeliveryFn describes a callback that will be triggered once a new event happens.
type DeliveryFn func(eventData []byte)

// CancelFn has to be called to unsubscribe.
type CancelFn func()

// SafeEventSource provides a method to subscribe to notifications about safes.
type SafeEventSource interface {
	SubscribeToSafeEvents(ctx context.Context, deliveryFn DeliveryFn, opts SubscribeToSafeEventsOptions) CancelFn
}
