package server

import "sync/atomic"

// Metrics captures lightweight in-process counters for observability.
type Metrics struct {
	Requests       atomic.Uint64
	MessagesSent   atomic.Uint64
	HistoryLoads   atomic.Uint64
	ChatsCleared   atomic.Uint64
	FilesShared    atomic.Uint64
	Downloads      atomic.Uint64
	SocketConnects atomic.Uint64
}
