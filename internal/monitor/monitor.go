package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/viewmark/extension/internal/influx"
	"github.com/viewmark/extension/internal/logging"
	"github.com/viewmark/extension/internal/session"
	"github.com/viewmark/extension/internal/store"
	"github.com/viewmark/extension/internal/worker"
)

// Status is a point-in-time snapshot of the engine's internals, written
// to status.txt and mirrored to the performance bucket.
type Status struct {
	Time                time.Time `json:"time"`
	ProjectName         string    `json:"projectName"`
	ActiveContext       string    `json:"activeContext"`
	BucketCount         int       `json:"bucketCount"`
	RecordCount         int       `json:"recordCount"`
	SaveQueueLength     int       `json:"saveQueueLength"`
	UsageQueueLength    int       `json:"usageQueueLength"`
	TransitionActive    bool      `json:"transitionActive"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Store            *store.Store
	Session          *session.Context
	LogManager       *logging.SlogManager
	WorkerManager    *worker.Manager
	Queues           *worker.Queues
	Influx           *influx.Manager // optional, may be nil
	StatusDir        string
	TransitionActive func() bool
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current program status
func (s *Service) GetProgramStatus() (output []string, status Status) {
	layout := s.deps.Store.Snapshot()
	recordCount := len(layout.LegacyRecords)
	for _, b := range layout.Buckets {
		recordCount += len(b.Records)
	}

	status = Status{
		Time:                time.Now(),
		ProjectName:         s.deps.Session.ProjectName(),
		ActiveContext:       string(s.deps.Store.ActiveContext()),
		BucketCount:         len(layout.Buckets),
		RecordCount:         recordCount,
		SaveQueueLength:     s.deps.Queues.Saves.Len(),
		UsageQueueLength:    s.deps.Queues.Usage.Len(),
		LastWriteDurationMs: float32(s.deps.WorkerManager.GetLastDBWriteDuration().Milliseconds()),
	}
	if s.deps.TransitionActive != nil {
		status.TransitionActive = s.deps.TransitionActive()
	}

	statusStr, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		statusStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(statusStr))

	return output, status
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		statusFile, err := os.Create(s.deps.StatusDir + "/status.txt")
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer statusFile.Close()

		for {
			select {
			case <-s.stopChan:
				return
			default:
				time.Sleep(1000 * time.Millisecond)

				statusStr, status := s.GetProgramStatus()

				if statusFile != nil {
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					for _, line := range statusStr {
						statusFile.WriteString(line + "\n")
					}
				}

				if s.deps.Influx != nil {
					s.writePerformancePoint(status)
				}
			}
		}
	}()

	return nil
}

func (s *Service) writePerformancePoint(status Status) {
	point := influxdb2_write.NewPoint(
		"engine_status",
		map[string]string{
			"project": status.ProjectName,
			"context": status.ActiveContext,
		},
		map[string]interface{}{
			"buckets":             status.BucketCount,
			"records":             status.RecordCount,
			"saveQueue":           status.SaveQueueLength,
			"usageQueue":          status.UsageQueueLength,
			"lastWriteDurationMs": status.LastWriteDurationMs,
		},
		status.Time,
	)
	err := s.deps.Influx.WritePoint(context.Background(), influx.PerformanceBucket, point)
	if err != nil {
		s.deps.LogManager.Logger().Warn("Error writing status point", "error", err)
	}
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
