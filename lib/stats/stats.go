package stats

import (
	"sync"
	"time"

	"github.com/fosdem/glscale/lib/utils"
)

type Snapshot struct {
	FramesProcessed uint64  `json:"frames_processed"`
	FramesDropped   uint64  `json:"frames_dropped"`
	LastScaleMs     float64 `json:"last_scale_ms"`
	SinceLastFrame  float64 `json:"since_last_frame"`
	Uptime          float64 `json:"uptime"`
	WsClients       int     `json:"ws_clients"`
}

type Stats struct {
	mu   sync.Mutex
	snap Snapshot

	frameTimer utils.DeltaTimer
	start      time.Time
}

func New() *Stats {
	s := &Stats{}
	s.start = time.Now()
	return s
}

func (s *Stats) Processed(took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.FramesProcessed++
	s.snap.LastScaleMs = float64(took.Microseconds()) / 1e3
	s.frameTimer.Next()
}

func (s *Stats) Dropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.FramesDropped++
	s.frameTimer.Next()
}

func (s *Stats) SetWsClients(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.WsClients = n
}

// Snapshot returns the counters with the time based fields brought up
// to date
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.snap.Uptime = now.Sub(s.start).Seconds()
	s.snap.SinceLastFrame = s.frameTimer.Since(now).Seconds()
	return s.snap
}
