package daemon

import (
	"fmt"
	"time"

	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/media"
	"github.com/matheus3301/wahub/internal/store"
	"github.com/matheus3301/wahub/internal/supervisor"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// EventSnapshot is published to the diagnostics room on every snapshot tick.
const EventSnapshot = "instances_snapshot"

// Snapshot is the periodic diagnostics summary.
type Snapshot struct {
	Instances []supervisor.InstanceView `json:"instances"`
	Active    int                       `json:"active"`
	Clients   int                       `json:"clients"`
	Timestamp time.Time                 `json:"timestamp"`
}

// JobsOptions enables the periodic jobs.
type JobsOptions struct {
	SnapshotInterval time.Duration
	MediaGC          bool
}

// Jobs runs the periodic diagnostics and maintenance tasks.
type Jobs struct {
	sched   *cron.Cron
	sup     *supervisor.Supervisor
	db      *store.DB
	media   *media.Store
	bus     *bus.Bus
	clients func() int
	logger  *zap.Logger
}

// NewJobs registers the jobs. Nothing runs until Start.
func NewJobs(sup *supervisor.Supervisor, db *store.DB, m *media.Store, b *bus.Bus, clients func() int,
	opts JobsOptions, logger *zap.Logger) (*Jobs, error) {
	j := &Jobs{
		sched:   cron.New(),
		sup:     sup,
		db:      db,
		media:   m,
		bus:     b,
		clients: clients,
		logger:  logger,
	}
	if opts.SnapshotInterval > 0 {
		if _, err := j.sched.AddFunc("@every "+opts.SnapshotInterval.String(), j.Snapshot); err != nil {
			return nil, fmt.Errorf("schedule snapshot: %w", err)
		}
	}
	if opts.MediaGC {
		if _, err := j.sched.AddFunc("@daily", func() {
			if _, err := j.CollectMedia(); err != nil {
				j.logger.Warn("media gc failed", zap.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule media gc: %w", err)
		}
	}
	return j, nil
}

func (j *Jobs) Start() {
	j.sched.Start()
}

// Stop waits for running jobs to finish.
func (j *Jobs) Stop() {
	<-j.sched.Stop().Done()
}

// Snapshot publishes the instance read model to the diagnostics room.
func (j *Jobs) Snapshot() {
	list, err := j.sup.List()
	if err != nil {
		j.logger.Warn("snapshot failed", zap.Error(err))
		return
	}
	snap := Snapshot{
		Instances: list,
		Active:    len(j.sup.Active()),
		Timestamp: time.Now(),
	}
	if j.clients != nil {
		snap.Clients = j.clients()
	}
	j.bus.Emit(bus.DiagnosticsRoom, EventSnapshot, snap)
}

// CollectMedia removes media directories whose instance no longer exists.
func (j *Jobs) CollectMedia() (int, error) {
	ids, err := j.db.InstanceIDs()
	if err != nil {
		return 0, err
	}
	orphans, err := j.media.Orphans(ids)
	if err != nil {
		return 0, err
	}
	for _, dir := range orphans {
		if err := j.media.RemoveInstance(dir); err != nil {
			return 0, fmt.Errorf("remove media %s: %w", dir, err)
		}
	}
	if len(orphans) > 0 {
		j.logger.Info("orphan media removed", zap.Int("dirs", len(orphans)))
	}
	return len(orphans), nil
}
