package services

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type DiagnosticSample struct {
	CapturedAt        time.Time `json:"capturedAt"`
	ProcessRSSBytes   int64     `json:"processRssBytes"`
	ProcessCpuLoad    float64   `json:"processCpuLoad"`
	SystemMemoryTotal int64     `json:"systemMemoryTotalBytes"`
	SystemMemoryUsed  int64     `json:"systemMemoryUsedBytes"`
	Goroutines        int       `json:"goroutines"`
	PushConnected     bool      `json:"pushConnected"`
	OpenViews         int       `json:"openViews"`
}

// CaptureDiagnostics samples the client process. Probe failures leave the
// matching fields zero.
func CaptureDiagnostics(pushConnected bool, openViews int) DiagnosticSample {
	sample := DiagnosticSample{
		CapturedAt:    time.Now().UTC(),
		Goroutines:    runtime.NumGoroutine(),
		PushConnected: pushConnected,
		OpenViews:     openViews,
	}
	if memStat, err := mem.VirtualMemory(); err == nil && memStat != nil {
		sample.SystemMemoryTotal = int64(memStat.Total)
		sample.SystemMemoryUsed = int64(memStat.Total - memStat.Available)
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	if proc != nil {
		if rss, _ := proc.MemoryInfo(); rss != nil {
			sample.ProcessRSSBytes = int64(rss.RSS)
		}
		cpuPerc, _ := proc.CPUPercent()
		sample.ProcessCpuLoad = cpuPerc / 100.0
	}
	return sample
}

type ConnectionStatus struct {
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

// StatusHub relays push-channel connection changes to local websocket
// viewers.
type StatusHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	last    ConnectionStatus
	ch      chan ConnectionStatus
}

func NewStatusHub() *StatusHub {
	return &StatusHub{
		clients: map[*websocket.Conn]bool{},
		ch:      make(chan ConnectionStatus, 16),
	}
}

func (h *StatusHub) Run(ctx context.Context) {
	for {
		select {
		case status := <-h.ch:
			h.mu.Lock()
			h.last = status
			for conn := range h.clients {
				if err := conn.WriteJSON(status); err != nil {
					_ = conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (h *StatusHub) Broadcast(connected bool) {
	select {
	case h.ch <- ConnectionStatus{Connected: connected, At: time.Now().UTC()}:
	default:
	}
}

// Add registers conn and sends it the last known status.
func (h *StatusHub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	if !h.last.At.IsZero() {
		_ = conn.WriteJSON(h.last)
	}
}

func (h *StatusHub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

func (h *StatusHub) Last() ConnectionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
