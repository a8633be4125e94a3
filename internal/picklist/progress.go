package picklist

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/yourusername/frc-picklist/internal/models"
)

// Generation states reported by BatchStatus.
const (
	StateRunning  = "running"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// BatchStatus is a pollable view of one generation's progress.
type BatchStatus struct {
	Fingerprint string                `json:"fingerprint"`
	State       string                `json:"state"`
	Mode        models.GenerationMode `json:"mode"`
	Chunks      int                   `json:"chunks"`
	Completed   int                   `json:"completed"`
	Failed      int                   `json:"failed"`
	Message     string                `json:"message"`
	StartedAt   time.Time             `json:"started_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// ProgressTracker holds generation progress keyed by fingerprint.
// Entries expire after the retention window.
type ProgressTracker struct {
	mu    sync.Mutex
	items *gocache.Cache
}

// NewProgressTracker creates a tracker retaining finished entries for retention.
func NewProgressTracker(retention time.Duration) *ProgressTracker {
	if retention <= 0 {
		retention = time.Hour
	}
	return &ProgressTracker{items: gocache.New(retention, 2*retention)}
}

// Start registers a generation with the given number of chunks.
func (p *ProgressTracker) Start(fingerprint string, mode models.GenerationMode, chunks int) {
	now := time.Now()
	status := BatchStatus{
		Fingerprint: fingerprint,
		State:       StateRunning,
		Mode:        mode,
		Chunks:      max(chunks, 1),
		StartedAt:   now,
		UpdatedAt:   now,
	}
	status.Message = progressMessage(status)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.items.SetDefault(fingerprint, status)
}

// ChunkDone records a finished chunk.
func (p *ProgressTracker) ChunkDone(fingerprint string, ok bool) {
	p.update(fingerprint, func(s *BatchStatus) {
		if ok {
			s.Completed++
		} else {
			s.Failed++
		}
		s.Message = progressMessage(*s)
	})
}

// Finish marks the generation terminal.
func (p *ProgressTracker) Finish(fingerprint string, status models.ResultStatus) {
	p.update(fingerprint, func(s *BatchStatus) {
		if status == models.StatusOK {
			s.State = StateComplete
			s.Message = "complete"
			return
		}
		s.State = StateFailed
		s.Message = fmt.Sprintf("finished with status %s", status)
	})
}

// Get returns the progress of a fingerprint.
func (p *ProgressTracker) Get(fingerprint string) (BatchStatus, bool) {
	v, ok := p.items.Get(fingerprint)
	if !ok {
		return BatchStatus{}, false
	}
	return v.(BatchStatus), true
}

// Forget drops a fingerprint.
func (p *ProgressTracker) Forget(fingerprint string) {
	p.items.Delete(fingerprint)
}

// Clear drops every entry.
func (p *ProgressTracker) Clear() {
	p.items.Flush()
}

func (p *ProgressTracker) update(fingerprint string, fn func(*BatchStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.items.Get(fingerprint)
	if !ok {
		return
	}
	status := v.(BatchStatus)
	fn(&status)
	status.UpdatedAt = time.Now()
	p.items.SetDefault(fingerprint, status)
}

func progressMessage(s BatchStatus) string {
	done := s.Completed + s.Failed
	if done == 0 {
		if s.Chunks == 1 {
			return "generating"
		}
		return fmt.Sprintf("0 of %d chunks complete", s.Chunks)
	}
	msg := fmt.Sprintf("chunk %d of %d complete", done, s.Chunks)
	if s.Failed > 0 {
		msg += fmt.Sprintf(" (%d failed)", s.Failed)
	}
	return msg
}
