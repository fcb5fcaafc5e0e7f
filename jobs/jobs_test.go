package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/maxgarvey/show_renamer/renamer"
	"github.com/maxgarvey/show_renamer/store"
)

type fakeProcessor struct {
	release chan struct{} // nil means return immediately
	started chan renamer.FolderRequest
	err     error
}

func (f *fakeProcessor) ProcessFolder(ctx context.Context, req renamer.FolderRequest) (renamer.Report, error) {
	if f.started != nil {
		f.started <- req
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return renamer.Report{}, ctx.Err()
		}
	}
	if f.err != nil {
		return renamer.Report{}, f.err
	}
	stats := renamer.Stats{Renamed: 2, Skipped: 1, PostersDownloaded: 2}
	req.Observer.Renamed(1, 1, req.FolderPath+"/a.mkv", req.FolderPath+"/Show - S01E01 - One.mkv")
	req.Observer.Renamed(1, 2, req.FolderPath+"/b.mkv", req.FolderPath+"/Show - S01E02 - Two.mkv")
	req.Observer.SeasonDone(1, req.FolderPath+"/Season 1", stats, nil)
	return renamer.Report{Seasons: []renamer.SeasonReport{{Season: 1, Stats: stats}}}, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestManager(t *testing.T, st store.Store, proc FolderProcessor, lockDir string) *Manager {
	t.Helper()
	m := NewManager(context.Background(), st, proc, lockDir, quietLogger())
	t.Cleanup(m.Shutdown)
	return m
}

func TestStartRunsToCompletion(t *testing.T) {
	st := newTestStore(t)
	m := newTestManager(t, st, &fakeProcessor{}, t.TempDir())
	ctx := context.Background()

	job, err := m.Start(ctx, Request{FolderPath: "/tv/Show/", ShowID: 5, ShowName: "Show", DownloadPosters: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.ID == "" || job.State != store.JobQueued {
		t.Errorf("unexpected job: %+v", job)
	}
	if job.FolderPath != "/tv/Show" {
		t.Errorf("folder path not cleaned: %q", job.FolderPath)
	}
	if job.MatchStrategy != renamer.MatchByIndex {
		t.Errorf("default strategy = %q, want index", job.MatchStrategy)
	}
	m.Wait()

	got, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != store.JobCompleted || got.StartedAt == nil || got.FinishedAt == nil {
		t.Errorf("job not completed: %+v", got)
	}
	if want := (store.JobStats{Renamed: 2, Skipped: 1, PostersDownloaded: 2}); got.Stats != want {
		t.Errorf("stats = %+v, want %+v", got.Stats, want)
	}
	renames, _ := st.ListRenames(ctx, job.ID)
	if len(renames) != 2 || renames[1].Episode != 2 {
		t.Errorf("unexpected renames: %+v", renames)
	}
	if _, ok := m.Active("/tv/Show"); ok {
		t.Error("folder should be released after the job")
	}
}

func TestStartRecordsFailure(t *testing.T) {
	st := newTestStore(t)
	m := newTestManager(t, st, &fakeProcessor{err: renamer.ErrNoSeasonFolders}, "")

	job, err := m.Start(context.Background(), Request{FolderPath: "/tv/Empty", ShowID: 1})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Wait()

	got, _ := st.GetJob(context.Background(), job.ID)
	if got.State != store.JobFailed || got.Error != renamer.ErrNoSeasonFolders.Error() {
		t.Errorf("unexpected job: %+v", got)
	}
}

func TestStartRejectsBusyFolder(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{release: make(chan struct{}), started: make(chan renamer.FolderRequest, 1)}
	m := newTestManager(t, st, proc, t.TempDir())
	ctx := context.Background()

	first, err := m.Start(ctx, Request{FolderPath: "/tv/Show", ShowID: 1})
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	<-proc.started

	if _, err := m.Start(ctx, Request{FolderPath: "/tv/Show/", ShowID: 1}); !errors.Is(err, ErrFolderBusy) {
		t.Fatalf("expected ErrFolderBusy, got %v", err)
	}
	if id, ok := m.Active("/tv/Show"); !ok || id != first.ID {
		t.Errorf("Active = %q, %v; want %q", id, ok, first.ID)
	}

	close(proc.release)
	m.Wait()
	proc.release = nil
	proc.started = nil
	if _, err := m.Start(ctx, Request{FolderPath: "/tv/Show", ShowID: 1}); err != nil {
		t.Errorf("Start after release: %v", err)
	}
	m.Wait()
}

func TestStartRejectsFolderLockedByOtherManager(t *testing.T) {
	lockDir := t.TempDir()
	proc := &fakeProcessor{release: make(chan struct{}), started: make(chan renamer.FolderRequest, 1)}
	a := newTestManager(t, newTestStore(t), proc, lockDir)
	b := newTestManager(t, newTestStore(t), &fakeProcessor{}, lockDir)

	if _, err := a.Start(context.Background(), Request{FolderPath: "/tv/Shared", ShowID: 1}); err != nil {
		t.Fatalf("Start on a: %v", err)
	}
	<-proc.started
	if _, err := b.Start(context.Background(), Request{FolderPath: "/tv/Shared", ShowID: 1}); !errors.Is(err, ErrFolderBusy) {
		t.Errorf("expected ErrFolderBusy from second manager, got %v", err)
	}
	if _, err := b.Start(context.Background(), Request{FolderPath: "/tv/Other", ShowID: 1}); err != nil {
		t.Errorf("other folder should be free: %v", err)
	}
	close(proc.release)
	a.Wait()
	b.Wait()
}

func TestRecoverStaleSkipsLockedFolders(t *testing.T) {
	lockDir := t.TempDir()
	st := newTestStore(t)
	ctx := context.Background()
	proc := &fakeProcessor{release: make(chan struct{}), started: make(chan renamer.FolderRequest, 1)}
	cli := newTestManager(t, st, proc, lockDir)
	server := newTestManager(t, st, &fakeProcessor{}, lockDir)

	live, err := cli.Start(ctx, Request{FolderPath: "/tv/Live", ShowID: 1})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-proc.started
	if _, err := st.CreateJob(ctx, store.Job{ID: "orphan", FolderPath: "/tv/Gone", ShowID: 2}); err != nil {
		t.Fatal(err)
	}
	st.SetJobState(ctx, "orphan", store.JobRunning, "")

	n, err := server.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if n != 1 {
		t.Errorf("RecoverStale failed %d jobs, want 1", n)
	}
	if got, _ := st.GetJob(ctx, "orphan"); got.State != store.JobFailed || got.Error != "interrupted" {
		t.Errorf("orphaned job: %+v", got)
	}
	if got, _ := st.GetJob(ctx, live.ID); got.State.Done() {
		t.Errorf("live job must not be failed: %+v", got)
	}

	// The owner skips its own active job too.
	if n, err := cli.RecoverStale(ctx); err != nil || n != 0 {
		t.Errorf("RecoverStale on owner = %d, %v; want 0, nil", n, err)
	}

	close(proc.release)
	cli.Wait()
	if got, _ := st.GetJob(ctx, live.ID); got.State != store.JobCompleted {
		t.Errorf("live job should complete, got %q", got.State)
	}
	if _, err := server.Start(ctx, Request{FolderPath: "/tv/Gone", ShowID: 2}); err != nil {
		t.Errorf("recovered folder should be free: %v", err)
	}
	server.Wait()
}

func TestStartInvalidStrategy(t *testing.T) {
	m := newTestManager(t, newTestStore(t), &fakeProcessor{}, "")
	_, err := m.Start(context.Background(), Request{FolderPath: "/tv/Show", MatchStrategy: "bogus"})
	if !errors.Is(err, renamer.ErrInvalidStrategy) {
		t.Errorf("expected ErrInvalidStrategy, got %v", err)
	}
	if _, ok := m.Active("/tv/Show"); ok {
		t.Error("rejected request must not hold the folder")
	}
}

func TestStartManualMapping(t *testing.T) {
	proc := &fakeProcessor{started: make(chan renamer.FolderRequest, 1)}
	m := newTestManager(t, newTestStore(t), proc, "")

	job, err := m.Start(context.Background(), Request{
		FolderPath: "/tv/Show", ShowID: 1, Mapping: map[string]int{"x.mkv": 3},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	req := <-proc.started
	m.Wait()
	if job.MatchStrategy != renamer.MatchManual {
		t.Errorf("strategy = %q, want manual", job.MatchStrategy)
	}
	if _, ok := req.Matcher.(renamer.ManualMatcher); !ok {
		t.Errorf("matcher = %T, want ManualMatcher", req.Matcher)
	}
}

func TestShutdownCancelsRunningJob(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{release: make(chan struct{}), started: make(chan renamer.FolderRequest, 1)}
	m := NewManager(context.Background(), st, proc, "", quietLogger())

	job, err := m.Start(context.Background(), Request{FolderPath: "/tv/Show", ShowID: 1})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-proc.started

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	got, _ := st.GetJob(context.Background(), job.ID)
	if got.State != store.JobFailed || got.Error != context.Canceled.Error() {
		t.Errorf("unexpected job after shutdown: %+v", got)
	}
}
