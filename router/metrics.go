package router

import "sync/atomic"

// MetricsSnapshot is a point-in-time copy of the router counters.
type MetricsSnapshot struct {
	Requests      int64 `json:"requests"`
	Replies       int64 `json:"replies"`
	Broadcasts    int64 `json:"broadcasts"`
	Dropped       int64 `json:"dropped"`
	Subscribers   int64 `json:"subscribers"`
	InputRequests int64 `json:"input_requests"`
}

type Metrics struct {
	requests      atomic.Int64
	replies       atomic.Int64
	broadcasts    atomic.Int64
	dropped       atomic.Int64
	subscribers   atomic.Int64
	inputRequests atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordRequest(delta int) {
	m.requests.Add(int64(delta))
}

func (m *Metrics) RecordReply(delta int) {
	m.replies.Add(int64(delta))
}

func (m *Metrics) RecordBroadcast(delta int) {
	m.broadcasts.Add(int64(delta))
}

func (m *Metrics) RecordDropped(delta int) {
	m.dropped.Add(int64(delta))
}

func (m *Metrics) RecordSubscriber(delta int) {
	m.subscribers.Add(int64(delta))
}

func (m *Metrics) RecordInputRequest(delta int) {
	m.inputRequests.Add(int64(delta))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:      m.requests.Load(),
		Replies:       m.replies.Load(),
		Broadcasts:    m.broadcasts.Load(),
		Dropped:       m.dropped.Load(),
		Subscribers:   m.subscribers.Load(),
		InputRequests: m.inputRequests.Load(),
	}
}
