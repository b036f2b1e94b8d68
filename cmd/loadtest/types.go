package main

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Report struct {
	GeneratedAtRFC3339 string `json:"generatedAt"`
	Config             Config `json:"config"`

	StartedAtRFC3339 string `json:"startedAt"`
	EndedAtRFC3339   string `json:"endedAt"`
	DurationSeconds  int64  `json:"durationSeconds"`

	RoomsAttempted int64 `json:"roomsAttempted"`
	RoomsReady     int64 `json:"roomsReady"`

	JoinAttempts int64 `json:"joinAttempts"`
	JoinFailures int64 `json:"joinFailures"`

	MessagesSent          int64 `json:"messagesSent"`
	MessageSendFailures   int64 `json:"messageSendFailures"`
	MessagesReceived      int64 `json:"messagesReceived"`
	UnexpectedDisconnects int64 `json:"unexpectedDisconnects"`

	JoinP95Ms float64 `json:"joinP95Ms"`
	ErrorRate float64 `json:"errorRate"`

	ServerStatsAvailable bool  `json:"serverStatsAvailable"`
	SendQueueDropDelta   int64 `json:"sendQueueDropDelta"`

	Passed     bool   `json:"passed"`
	FailReason string `json:"failReason,omitempty"`
}

type Metrics struct {
	roomsAttempted        atomic.Int64
	roomsReady            atomic.Int64
	joinAttempts          atomic.Int64
	joinFailures          atomic.Int64
	messagesSent          atomic.Int64
	messageSendFailures   atomic.Int64
	messagesReceived      atomic.Int64
	unexpectedDisconnects atomic.Int64

	joinLatencyMu sync.Mutex
	joinLatencies []int64
}

func (m *Metrics) AddJoinLatency(ms int64) {
	if ms < 0 {
		ms = 0
	}
	m.joinLatencyMu.Lock()
	m.joinLatencies = append(m.joinLatencies, ms)
	m.joinLatencyMu.Unlock()
}

func (m *Metrics) JoinP95Ms() float64 {
	m.joinLatencyMu.Lock()
	defer m.joinLatencyMu.Unlock()
	if len(m.joinLatencies) == 0 {
		return 0
	}
	sorted := append([]int64(nil), m.joinLatencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx])
}

func (m *Metrics) ErrorRate() float64 {
	attempts := m.roomsAttempted.Load() + m.joinAttempts.Load() + m.messagesSent.Load()
	if attempts <= 0 {
		return 0
	}
	failures := m.joinFailures.Load() + m.messageSendFailures.Load() + m.unexpectedDisconnects.Load()
	return float64(failures) / float64(attempts)
}

func (m *Metrics) ToReport(cfg Config, started, ended time.Time) Report {
	return Report{
		Config: cfg,

		StartedAtRFC3339: started.UTC().Format(time.RFC3339),
		EndedAtRFC3339:   ended.UTC().Format(time.RFC3339),
		DurationSeconds:  int64(ended.Sub(started).Seconds()),

		RoomsAttempted: m.roomsAttempted.Load(),
		RoomsReady:     m.roomsReady.Load(),

		JoinAttempts: m.joinAttempts.Load(),
		JoinFailures: m.joinFailures.Load(),

		MessagesSent:          m.messagesSent.Load(),
		MessageSendFailures:   m.messageSendFailures.Load(),
		MessagesReceived:      m.messagesReceived.Load(),
		UnexpectedDisconnects: m.unexpectedDisconnects.Load(),

		JoinP95Ms: m.JoinP95Ms(),
		ErrorRate: m.ErrorRate(),
	}
}

func writeJSONReport(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
