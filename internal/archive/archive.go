// Package archive periodically exports flushed analytics events and
// processing episode records from the durable store to external
// destinations as JSONL.
package archive

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/store"
)

// Destination is an archive target.
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic archive exports to one or more destinations.
// Exports with no events and no episodes are skipped so idle
// deployments don't accumulate empty objects.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic archiving, with an immediate first export.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.archiveOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.archiveOnce(ctx)
			}
		}
	}()
}

// Stop cancels the scheduler and waits for an in-flight export to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) archiveOnce(ctx context.Context) {
	var buf bytes.Buffer
	stats, err := ExportJSONL(ctx, s.store, &buf)
	if err != nil {
		s.logger.Error("archive export failed", "err", err)
		return
	}
	if stats.Events == 0 && stats.Episodes == 0 {
		s.logger.Debug("archive skipped, nothing to export")
		return
	}

	data := buf.Bytes()
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("archive write failed", "destination", dest.Name(), "err", err)
			continue
		}
		s.logger.Info("archive written",
			"destination", dest.Name(),
			"events", stats.Events,
			"episodes", stats.Episodes,
			"bytes", len(data))
	}
}
