package ingest

import (
	"context"
	"log"
	"time"
)

// Importer loads a source into the working table.
type Importer interface {
	Import(ctx context.Context, s Settings) (Summary, error)
}

// Scheduler re-imports a source on a fixed interval, for loggers that keep
// appending to a file on an FTP or HTTP server during a test.
type Scheduler struct {
	importer Importer
	settings Settings
	interval time.Duration
}

func NewScheduler(importer Importer, s Settings, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Scheduler{
		importer: importer,
		settings: s,
		interval: interval,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.importOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-ticker.C:
			s.importOnce(ctx)
		}
	}
}

func (s *Scheduler) importOnce(ctx context.Context) {
	sum, err := s.importer.Import(ctx, s.settings)
	if err != nil {
		log.Printf("scheduler: import %s: %v", s.settings.Source, err)
		return
	}
	log.Printf("scheduler: refreshed %s: %d rows", sum.Source, sum.Rows)
}
