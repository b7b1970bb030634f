package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRetention is how long transcripts are kept before pruning.
	DefaultRetention = 7 * 24 * time.Hour
	// DefaultPruneSchedule is the cron spec for the pruning sweep.
	DefaultPruneSchedule = "@hourly"
)

// Pruner removes transcript files older than a retention window on a cron
// schedule.
type Pruner struct {
	journal   *Journal
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	running   bool
}

// NewPruner creates a transcript pruner. A zero retention falls back to
// DefaultRetention.
func NewPruner(journal *Journal, retention time.Duration) *Pruner {
	if retention == 0 {
		retention = DefaultRetention
	}

	return &Pruner{
		journal:   journal,
		retention: retention,
		schedule:  DefaultPruneSchedule,
		cron:      cron.New(),
	}
}

// Start schedules the pruning sweep.
func (p *Pruner) Start() error {
	if p.running {
		return fmt.Errorf("pruner is already running")
	}

	if _, err := p.cron.AddFunc(p.schedule, p.prune); err != nil {
		return fmt.Errorf("failed to schedule prune job: %w", err)
	}
	p.cron.Start()
	p.running = true

	log.Info().
		Dur("retention", p.retention).
		Str("schedule", p.schedule).
		Msg("Transcript pruner started")

	return nil
}

// Stop halts the pruning schedule. Any sweep in flight finishes first.
func (p *Pruner) Stop() {
	if !p.running {
		return
	}
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.running = false

	log.Info().Msg("Transcript pruner stopped")
}

// prune removes transcripts whose last modification is older than the
// retention window.
func (p *Pruner) prune() {
	sessions, err := p.journal.List()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list transcripts for pruning")
		return
	}

	cutoff := time.Now().Add(-p.retention)
	removed := 0

	for _, sessionID := range sessions {
		info, err := p.journal.Info(sessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to stat transcript, skipping")
			continue
		}
		if info.LastModified.After(cutoff) {
			continue
		}
		if err := p.journal.Remove(sessionID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to prune transcript")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Pruned old transcripts")
	}
}
