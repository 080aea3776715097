package file

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
	"github.com/Benedict-CS/line-backup-bot/pkg/jsonfile"
)

const dateLayout = "2006-01-02"

// StatsRecorder keeps the last backup time and the count for the current local day
type StatsRecorder struct {
	mu     sync.Mutex
	stats  entities.BackupStats
	path   string
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// NewStatsRecorder loads stats from path. An empty path keeps stats in memory only.
func NewStatsRecorder(path string, loc *time.Location, logger zerolog.Logger) *StatsRecorder {
	if loc == nil {
		loc = time.Local
	}
	r := &StatsRecorder{
		path:   path,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}

	if path != "" {
		if _, err := jsonfile.Read(path, &r.stats); err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Could not load backup stats")
			r.stats = entities.BackupStats{}
		}
	}

	return r
}

// Record counts one successful backup at the given instant
func (r *StatsRecorder) Record(at time.Time) {
	local := at.In(r.loc)
	today := local.Format(dateLayout)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stats.Date != today {
		r.stats.Date = today
		r.stats.Count = 0
	}
	r.stats.Count++
	r.stats.LastAt = &local

	if r.path == "" {
		return
	}
	if err := jsonfile.WriteAtomic(r.path, r.stats); err != nil {
		r.logger.Warn().Err(err).Str("file", r.path).Msg("Could not save backup stats")
	}
}

// Snapshot returns the stats with the count reset when the stored day is not today
func (r *StatsRecorder) Snapshot() entities.BackupStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.stats
	today := r.now().In(r.loc).Format(dateLayout)
	if out.Date != today {
		out.Date = today
		out.Count = 0
	}
	return out
}
