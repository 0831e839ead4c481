package ui

import (
	"sync"
	"time"
)

// ProgressTracker holds the state shown by the TUI. Safe for concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	stage      Stage
	current    int
	total      int
	message    string
	stageStart time.Time

	lastETA time.Duration

	lastCurrent   int
	lastSpeedCalc time.Time
	avgSpeed      float64
	peakSpeed     float64
	speedSamples  int
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage    Stage
	Current  int
	Total    int
	Progress float64
	ETA      time.Duration
	Message  string
	AvgSpeed float64
	Peak     float64
}

// NewProgressTracker creates a tracker in StageLoading.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stage: StageLoading, stageStart: now, lastSpeedCalc: now}
}

// SetStage moves to stage and resets per-stage counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.message = ""
	p.stageStart = now
	p.lastETA = 0
	p.lastCurrent = 0
	p.lastSpeedCalc = now
	p.avgSpeed, p.peakSpeed, p.speedSamples = 0, 0, 0
}

// Update records progress within the current stage. Speed is sampled at
// most every 500ms.
func (p *ProgressTracker) Update(current int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if message != "" {
		p.message = message
	}

	now := time.Now()
	elapsed := now.Sub(p.lastSpeedCalc)
	if elapsed < 500*time.Millisecond {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speedSamples++
		if p.speedSamples == 1 {
			p.avgSpeed = speed
		} else {
			p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
		}
		p.peakSpeed = max(p.peakSpeed, speed)
	}
	p.lastCurrent = current
	p.lastSpeedCalc = now
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var progress float64
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1)
	}
	return ProgressStats{
		Stage:    p.stage,
		Current:  p.current,
		Total:    p.total,
		Progress: progress,
		ETA:      p.eta(),
		Message:  p.message,
		AvgSpeed: p.avgSpeed,
		Peak:     p.peakSpeed,
	}
}

// etaSmoothing is the weight of the newest estimate.
const etaSmoothing = 0.3

// eta extrapolates the stage's elapsed time, smoothed against the previous
// estimate. Callers hold mu.
func (p *ProgressTracker) eta() time.Duration {
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		return 0
	}
	elapsed := time.Since(p.stageStart)
	raw := time.Duration(float64(elapsed)/(float64(p.current)/float64(p.total))) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}
