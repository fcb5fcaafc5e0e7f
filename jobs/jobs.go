// Package jobs runs folder processing in the background and records each
// run in the store.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/maxgarvey/show_renamer/renamer"
	"github.com/maxgarvey/show_renamer/store"
)

// ErrFolderBusy is returned when a job for the same folder is already active,
// in this process or another one sharing the lock directory.
var ErrFolderBusy = errors.New("folder is already being processed")

// FolderProcessor is the part of renamer.Processor a job needs.
type FolderProcessor interface {
	ProcessFolder(ctx context.Context, req renamer.FolderRequest) (renamer.Report, error)
}

// Request describes one folder run.
type Request struct {
	FolderPath      string
	ShowID          int
	ShowName        string
	ConfirmRenames  bool
	DownloadPosters bool
	WriteTags       bool
	MatchStrategy   string
	Mapping         map[string]int
}

// Manager starts jobs and enforces one active job per folder.
type Manager struct {
	store   store.Store
	proc    FolderProcessor
	lockDir string
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]string // folder -> job id
}

// NewManager returns a Manager whose jobs are bound to ctx. lockDir holds the
// cross-process folder locks; empty disables them.
func NewManager(ctx context.Context, st store.Store, proc FolderProcessor, lockDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		store:   st,
		proc:    proc,
		lockDir: lockDir,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]string),
	}
}

// Start records a queued job and runs it on its own goroutine. ctx only
// bounds the setup; the run itself outlives the caller.
func (m *Manager) Start(ctx context.Context, req Request) (store.Job, error) {
	matcher, err := renamer.NewMatcher(req.MatchStrategy, req.Mapping)
	if err != nil {
		return store.Job{}, err
	}
	strategy := req.MatchStrategy
	if len(req.Mapping) > 0 {
		strategy = renamer.MatchManual
	} else if strategy == "" {
		strategy = renamer.MatchByIndex
	}
	folder := filepath.Clean(req.FolderPath)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[folder]; busy {
		return store.Job{}, ErrFolderBusy
	}
	lock, err := m.lockFolder(folder)
	if err != nil {
		return store.Job{}, err
	}

	job, err := m.store.CreateJob(ctx, store.Job{
		ID:              uuid.NewString(),
		FolderPath:      folder,
		ShowID:          req.ShowID,
		ShowName:        req.ShowName,
		ConfirmRenames:  req.ConfirmRenames,
		DownloadPosters: req.DownloadPosters,
		WriteTags:       req.WriteTags,
		MatchStrategy:   strategy,
	})
	if err != nil {
		unlock(lock)
		return store.Job{}, fmt.Errorf("create job: %w", err)
	}
	m.active[folder] = job.ID

	m.wg.Add(1)
	go m.run(job, lock, renamer.FolderRequest{
		FolderPath: folder,
		ShowID:     req.ShowID,
		ShowName:   req.ShowName,
		Options: renamer.Options{
			DownloadPosters: req.DownloadPosters,
			WriteTags:       req.WriteTags,
			Matcher:         matcher,
		},
	})
	return job, nil
}

func (m *Manager) run(job store.Job, lock *flock.Flock, req renamer.FolderRequest) {
	defer m.wg.Done()
	defer func() {
		unlock(lock)
		m.mu.Lock()
		delete(m.active, job.FolderPath)
		m.mu.Unlock()
	}()

	log := m.logger.With("job", job.ID, "folder", job.FolderPath)
	// Store writes must land even after shutdown cancels the run.
	storeCtx := context.WithoutCancel(m.ctx)

	if err := m.store.SetJobState(storeCtx, job.ID, store.JobRunning, ""); err != nil {
		log.Error("mark job running", "error", err)
	}
	log.Info("job started", "show", job.ShowName, "strategy", job.MatchStrategy)

	req.Observer = &recorder{ctx: storeCtx, store: m.store, jobID: job.ID, log: log}
	report, err := m.proc.ProcessFolder(m.ctx, req)

	state, msg := store.JobCompleted, ""
	if err != nil {
		state, msg = store.JobFailed, err.Error()
		log.Error("job failed", "error", err)
	} else {
		total := report.Totals()
		log.Info("job completed",
			"seasons", len(report.Seasons),
			"renamed", total.Renamed,
			"skipped", total.Skipped,
			"errors", total.Errors,
			"posters_downloaded", total.PostersDownloaded,
		)
	}
	if err := m.store.SetJobState(storeCtx, job.ID, state, msg); err != nil {
		log.Error("mark job finished", "error", err)
	}
}

// RecoverStale fails jobs left queued or running by a process that is gone.
// A job whose folder lock is still held belongs to a live run elsewhere and
// is left alone. It returns the number of jobs failed.
func (m *Manager) RecoverStale(ctx context.Context) (int, error) {
	unfinished, err := m.store.ListUnfinishedJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished jobs: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	failed := 0
	for _, job := range unfinished {
		if _, mine := m.active[job.FolderPath]; mine {
			continue
		}
		lock, err := m.lockFolder(job.FolderPath)
		if errors.Is(err, ErrFolderBusy) {
			m.logger.Debug("job still running elsewhere", "job", job.ID, "folder", job.FolderPath)
			continue
		}
		if err != nil {
			return failed, err
		}
		changed, err := m.store.FailUnfinishedJob(ctx, job.ID, "interrupted")
		unlock(lock)
		if err != nil {
			return failed, fmt.Errorf("fail job %s: %w", job.ID, err)
		}
		if changed {
			failed++
		}
	}
	return failed, nil
}

// Active returns the id of the job currently processing folder.
func (m *Manager) Active(folder string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[filepath.Clean(folder)]
	return id, ok
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() { m.wg.Wait() }

// Shutdown cancels running jobs and waits for them to stop.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) lockFolder(folder string) (*flock.Flock, error) {
	if m.lockDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(m.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(m.lockPath(folder))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock folder: %w", err)
	}
	if !ok {
		return nil, ErrFolderBusy
	}
	return lock, nil
}

func (m *Manager) lockPath(folder string) string {
	sum := sha256.Sum256([]byte(folder))
	return filepath.Join(m.lockDir, hex.EncodeToString(sum[:8])+".lock")
}

func unlock(lock *flock.Flock) {
	if lock != nil {
		lock.Unlock() //nolint:errcheck
	}
}

// recorder persists pipeline progress as it happens.
type recorder struct {
	ctx   context.Context
	store store.Store
	jobID string
	log   *slog.Logger
}

func (r *recorder) Renamed(season, episode int, oldPath, newPath string) {
	if err := r.store.RecordRename(r.ctx, store.Rename{
		JobID:   r.jobID,
		Season:  season,
		Episode: episode,
		OldPath: oldPath,
		NewPath: newPath,
	}); err != nil {
		r.log.Error("record rename", "file", oldPath, "error", err)
	}
}

func (r *recorder) SeasonDone(season int, folder string, stats renamer.Stats, err error) {
	if err != nil {
		r.log.Warn("season failed", "season", season, "error", err)
	}
	if err := r.store.AddJobStats(r.ctx, r.jobID, store.JobStats{
		Renamed:           stats.Renamed,
		Skipped:           stats.Skipped,
		Errors:            stats.Errors,
		PostersDownloaded: stats.PostersDownloaded,
	}); err != nil {
		r.log.Error("record season stats", "season", season, "error", err)
	}
}
