package adapters

import "context"

// ClusterWsClient is a single-writer duplex WebSocket connection. The log
// stream multiplexer (internal/streammux) is its sole writer and sole
// reader of OnMessage events per cluster.
type ClusterWsClient interface {
	Open(ctx context.Context) error
	Send(ctx context.Context, raw []byte) error
	Close() error

	// OnMessage/OnOpen/OnClose/OnError register the multiplexer's callbacks.
	// Implementations call at most one of these per event, and never
	// concurrently with Close returning.
	OnOpen(func())
	OnMessage(func(raw []byte))
	OnClose(func())
	OnError(func(error))
}
