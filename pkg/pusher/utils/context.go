package utils

import (
	"context"
)

type contextKey string

const ClientNameKey contextKey = "client-name-key"

// ClientNameFromContext returns a client name from a request context.
// Added by the request id middleware of the API.
func ClientNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(ClientNameKey).(string)
	return name
}

func WithClientName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ClientNameKey, name)
}
