// Package stats holds process-wide chat-domain counters, re-keyed from
// the teacher's WebRTC join-latency/relay stats to room/participant/message
// counters, same atomic-counter-plus-snapshot mechanism.
package stats

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of broker/archival stats.
type Snapshot struct {
	TimestampMs int64                `json:"timestampMs"`
	Gauges      SnapshotGauges       `json:"gauges"`
	Counters    SnapshotCounters     `json:"counters"`
	Messages    SnapshotMessages     `json:"messages"`
	Disconnects map[string]int64     `json:"disconnects"`
	Runtime     SnapshotRuntimeStats `json:"runtime"`
}

type SnapshotGauges struct {
	ActiveConnections int64 `json:"activeConnections"`
	ActiveRooms       int64 `json:"activeRooms"`
}

type SnapshotCounters struct {
	RoomsCreated       int64 `json:"roomsCreated"`
	RoomsAccepted      int64 `json:"roomsAccepted"`
	RoomsClosed        int64 `json:"roomsClosed"`
	RoomsArchived      int64 `json:"roomsArchived"`
	JoinAttempts       int64 `json:"joinAttempts"`
	JoinRejectedFull   int64 `json:"joinRejectedFull"`
	ConnectionAttempts int64 `json:"connectionAttempts"`
	ConnectionFailures int64 `json:"connectionFailures"`
	SendQueueDropTotal int64 `json:"sendQueueDropTotal"`
}

type SnapshotMessages struct {
	RxTotal  int64            `json:"rxTotal"`
	TxTotal  int64            `json:"txTotal"`
	RxByType map[string]int64 `json:"rxByType"`
	TxByType map[string]int64 `json:"txByType"`
}

type SnapshotRuntimeStats struct {
	Goroutines   int    `json:"goroutines"`
	HeapAlloc    uint64 `json:"heapAlloc"`
	HeapInuse    uint64 `json:"heapInuse"`
	HeapObjects  uint64 `json:"heapObjects"`
	NumGC        uint32 `json:"numGc"`
	PauseTotalNs uint64 `json:"pauseTotalNs"`
	LastPauseNs  uint64 `json:"lastPauseNs"`
}

type counterMap struct {
	m sync.Map
}

func normalizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	return key
}

func (c *counterMap) Inc(key string) {
	k := normalizeKey(key)
	if v, ok := c.m.Load(k); ok {
		v.(*atomic.Int64).Add(1)
		return
	}
	counter := &atomic.Int64{}
	actual, _ := c.m.LoadOrStore(k, counter)
	actual.(*atomic.Int64).Add(1)
}

func (c *counterMap) Snapshot() map[string]int64 {
	result := map[string]int64{}
	c.m.Range(func(key, value any) bool {
		k, ok := key.(string)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Int64)
		if !ok {
			return true
		}
		result[k] = counter.Load()
		return true
	})
	return result
}

var (
	activeConnections atomic.Int64
	activeRooms        atomic.Int64

	roomsCreated  atomic.Int64
	roomsAccepted atomic.Int64
	roomsClosed   atomic.Int64
	roomsArchived atomic.Int64

	joinAttempts     atomic.Int64
	joinRejectedFull atomic.Int64

	connectionAttempts atomic.Int64
	connectionFailures atomic.Int64
	sendQueueDropTotal atomic.Int64

	messagesRXTotal  atomic.Int64
	messagesTXTotal  atomic.Int64
	messagesRXByType counterMap
	messagesTXByType counterMap

	disconnectsByReason counterMap
)

func AddActiveConnections(delta int64) { activeConnections.Add(delta) }
func SetActiveRooms(value int64)       { activeRooms.Store(value) }

func IncRoomCreated()  { roomsCreated.Add(1) }
func IncRoomAccepted() { roomsAccepted.Add(1) }
func IncRoomClosed()   { roomsClosed.Add(1) }
func IncRoomArchived() { roomsArchived.Add(1) }

func IncJoinAttempt()     { joinAttempts.Add(1) }
func IncJoinRejectedFull() { joinRejectedFull.Add(1) }

func IncConnectionAttempt() { connectionAttempts.Add(1) }
func IncConnectionFailure() { connectionFailures.Add(1) }
func IncSendQueueDrop()     { sendQueueDropTotal.Add(1) }

func IncMessageRX(messageType string) {
	messagesRXTotal.Add(1)
	messagesRXByType.Inc(messageType)
}

func IncMessageTX(messageType string) {
	messagesTXTotal.Add(1)
	messagesTXByType.Inc(messageType)
}

func IncDisconnect(reason string) {
	disconnectsByReason.Inc(reason)
}

func SnapshotNow() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	lastPause := uint64(0)
	if mem.NumGC > 0 {
		idx := (mem.NumGC - 1) % uint32(len(mem.PauseNs))
		lastPause = mem.PauseNs[idx]
	}

	rx := messagesRXByType.Snapshot()
	tx := messagesTXByType.Snapshot()
	disconnects := disconnectsByReason.Snapshot()

	return Snapshot{
		TimestampMs: time.Now().UnixMilli(),
		Gauges: SnapshotGauges{
			ActiveConnections: activeConnections.Load(),
			ActiveRooms:       activeRooms.Load(),
		},
		Counters: SnapshotCounters{
			RoomsCreated:       roomsCreated.Load(),
			RoomsAccepted:      roomsAccepted.Load(),
			RoomsClosed:        roomsClosed.Load(),
			RoomsArchived:      roomsArchived.Load(),
			JoinAttempts:       joinAttempts.Load(),
			JoinRejectedFull:   joinRejectedFull.Load(),
			ConnectionAttempts: connectionAttempts.Load(),
			ConnectionFailures: connectionFailures.Load(),
			SendQueueDropTotal: sendQueueDropTotal.Load(),
		},
		Messages: SnapshotMessages{
			RxTotal:  messagesRXTotal.Load(),
			TxTotal:  messagesTXTotal.Load(),
			RxByType: rx,
			TxByType: tx,
		},
		Disconnects: disconnects,
		Runtime: SnapshotRuntimeStats{
			Goroutines:   runtime.NumGoroutine(),
			HeapAlloc:    mem.HeapAlloc,
			HeapInuse:    mem.HeapInuse,
			HeapObjects:  mem.HeapObjects,
			NumGC:        mem.NumGC,
			PauseTotalNs: mem.PauseTotalNs,
			LastPauseNs:  lastPause,
		},
	}
}
