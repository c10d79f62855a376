package download

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"modvault/internal/catalog"
	"modvault/internal/logging"
	"modvault/internal/store"
)

type stubStore struct {
	mu        sync.Mutex
	stored    map[string]bool
	hasErr    error
	putErr    error
	artifacts map[string]*store.Artifact
	previews  map[string]string
	history   []store.HistoryEntry
	calls     []string
}

func newStubStore() *stubStore {
	return &stubStore{
		stored:    make(map[string]bool),
		artifacts: make(map[string]*store.Artifact),
		previews:  make(map[string]string),
	}
}

func (s *stubStore) HasArtifact(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "has")
	return s.stored[id], s.hasErr
}

func (s *stubStore) PutArtifact(ctx context.Context, artifact *store.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "put")
	if s.putErr != nil {
		return s.putErr
	}
	s.artifacts[artifact.ID] = artifact
	s.stored[artifact.ID] = true
	return nil
}

func (s *stubStore) SavePreview(ctx context.Context, artifactID, dataURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "preview")
	s.previews[artifactID] = dataURL
	return nil
}

func (s *stubStore) AppendHistory(ctx context.Context, entry *store.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "history")
	s.history = append(s.history, *entry)
	return nil
}

func (s *stubStore) callOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubFetcher struct {
	mu            sync.Mutex
	gate          chan struct{}
	artifactCalls int
	artifactErr   error
	result        FetchResult
	previewResult *PreviewResult
	previewErr    error
}

func (f *stubFetcher) FetchArtifact(ctx context.Context, artifactID, packageURL, name string) (*FetchResult, error) {
	f.mu.Lock()
	f.artifactCalls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.artifactErr != nil {
		return nil, f.artifactErr
	}
	result := f.result
	if !result.Success && result.Error == "" {
		result = FetchResult{Success: true, LocalPath: "/mods/" + artifactID}
	}
	return &result, nil
}

func (f *stubFetcher) FetchPreview(ctx context.Context, artifactID string) (*PreviewResult, error) {
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	if f.previewResult != nil {
		return f.previewResult, nil
	}
	return &PreviewResult{Success: false, Error: "no preview"}, nil
}

func (f *stubFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artifactCalls
}

type stubConverter struct {
	dataURL string
	err     error
	calls   int
}

func (c *stubConverter) ConvertRemote(ctx context.Context, url string) (string, error) {
	c.calls++
	return c.dataURL, c.err
}

func testDescriptor() *catalog.Descriptor {
	return &catalog.Descriptor{
		ID:         "mod-1",
		Name:       "Frost Queen",
		Author:     "aria",
		Tags:       []string{"skin"},
		SizeBytes:  2048,
		PackageURL: "https://example.com/mod-1.zip",
		PreviewURL: "https://example.com/mod-1.jpg",
	}
}

func newTestOrchestrator(fetcher Fetcher, st Store, converter PreviewConverter, opts Options) *Orchestrator {
	o := NewOrchestrator(fetcher, st, converter, opts, logging.NewNop())
	o.freeBytes = func(string) (uint64, error) { return 0, nil }
	return o
}

func TestDownloadPersistsArtifactAfterPreview(t *testing.T) {
	st := newStubStore()
	fetcher := &stubFetcher{previewResult: &PreviewResult{Success: true, DataURL: "data:image/jpeg;base64,aGk="}}
	o := newTestOrchestrator(fetcher, st, nil, Options{GracePeriod: time.Minute})

	if err := o.Download(context.Background(), testDescriptor()); err != nil {
		t.Fatalf("Download: %v", err)
	}

	artifact, ok := st.artifacts["mod-1"]
	if !ok {
		t.Fatal("artifact not persisted")
	}
	if artifact.LocalPath != "/mods/mod-1" {
		t.Errorf("LocalPath = %q", artifact.LocalPath)
	}
	if st.previews["mod-1"] != "data:image/jpeg;base64,aGk=" {
		t.Errorf("preview = %q", st.previews["mod-1"])
	}

	var previewIdx, putIdx int
	for i, call := range st.callOrder() {
		switch call {
		case "preview":
			previewIdx = i
		case "put":
			putIdx = i
		}
	}
	if previewIdx > putIdx {
		t.Errorf("preview saved after artifact record: %v", st.callOrder())
	}

	if len(st.history) != 1 || st.history[0].Status != store.HistoryCompleted {
		t.Errorf("history = %+v", st.history)
	}
	task, ok := o.Progress("mod-1")
	if !ok || task.Status != StatusCompleted {
		t.Errorf("task = %+v ok=%v", task, ok)
	}
}

func TestDownloadSkipsStoredArtifact(t *testing.T) {
	st := newStubStore()
	st.stored["mod-1"] = true
	fetcher := &stubFetcher{}
	o := newTestOrchestrator(fetcher, st, nil, Options{})

	if err := o.Download(context.Background(), testDescriptor()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if fetcher.calls() != 0 {
		t.Errorf("fetch calls = %d, want 0", fetcher.calls())
	}
	if len(st.history) != 0 {
		t.Errorf("history written for stored artifact: %+v", st.history)
	}
}

func TestConcurrentDownloadsShareOneTransfer(t *testing.T) {
	st := newStubStore()
	gate := make(chan struct{})
	fetcher := &stubFetcher{gate: gate}
	o := newTestOrchestrator(fetcher, st, nil, Options{GracePeriod: time.Minute})

	desc := testDescriptor()
	const callers = 5
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			errs <- o.Download(context.Background(), desc)
		}()
	}

	deadline := time.After(2 * time.Second)
	for fetcher.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("transfer never started")
		case <-time.After(time.Millisecond):
		}
	}
	// Joiners must be queued on the in-flight transfer before it resolves.
	time.Sleep(20 * time.Millisecond)
	close(gate)

	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Fatalf("caller %d: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("caller did not finish")
		}
	}
	if got := fetcher.calls(); got != 1 {
		t.Errorf("transfer count = %d, want 1", got)
	}
	if len(st.history) != 1 {
		t.Errorf("history rows = %d, want 1", len(st.history))
	}
}

func TestDownloadFailureRecordsHistory(t *testing.T) {
	st := newStubStore()
	fetchErr := errors.New("connection reset")
	fetcher := &stubFetcher{artifactErr: fetchErr}
	o := newTestOrchestrator(fetcher, st, nil, Options{GracePeriod: time.Minute})

	err := o.Download(context.Background(), testDescriptor())
	if !errors.Is(err, fetchErr) {
		t.Fatalf("err = %v, want %v", err, fetchErr)
	}

	task, ok := o.Progress("mod-1")
	if !ok || task.Status != StatusFailed || task.Error == "" {
		t.Errorf("task = %+v ok=%v", task, ok)
	}
	if len(st.history) != 1 || st.history[0].Status != store.HistoryFailed {
		t.Fatalf("history = %+v", st.history)
	}
	if st.history[0].Error != fetchErr.Error() {
		t.Errorf("history error = %q", st.history[0].Error)
	}
	if len(st.artifacts) != 0 {
		t.Errorf("failed download persisted an artifact")
	}
}

func TestPreviewFallbackOrder(t *testing.T) {
	t.Run("authenticated fetch wins", func(t *testing.T) {
		st := newStubStore()
		fetcher := &stubFetcher{previewResult: &PreviewResult{Success: true, DataURL: "data:fetched"}}
		converter := &stubConverter{dataURL: "data:converted"}
		desc := testDescriptor()
		desc.PreviewData = "data:inline"
		o := newTestOrchestrator(fetcher, st, converter, Options{GracePeriod: time.Minute})

		if err := o.Download(context.Background(), desc); err != nil {
			t.Fatal(err)
		}
		if st.previews["mod-1"] != "data:fetched" {
			t.Errorf("preview = %q", st.previews["mod-1"])
		}
		if converter.calls != 0 {
			t.Errorf("converter called %d times", converter.calls)
		}
	})

	t.Run("inline data when fetch fails", func(t *testing.T) {
		st := newStubStore()
		fetcher := &stubFetcher{previewErr: errors.New("403")}
		desc := testDescriptor()
		desc.PreviewData = "data:inline"
		o := newTestOrchestrator(fetcher, st, &stubConverter{dataURL: "data:converted"}, Options{GracePeriod: time.Minute})

		if err := o.Download(context.Background(), desc); err != nil {
			t.Fatal(err)
		}
		if st.previews["mod-1"] != "data:inline" {
			t.Errorf("preview = %q", st.previews["mod-1"])
		}
	})

	t.Run("remote conversion as last source", func(t *testing.T) {
		st := newStubStore()
		fetcher := &stubFetcher{previewErr: errors.New("403")}
		converter := &stubConverter{dataURL: "data:converted"}
		o := newTestOrchestrator(fetcher, st, converter, Options{GracePeriod: time.Minute})

		if err := o.Download(context.Background(), testDescriptor()); err != nil {
			t.Fatal(err)
		}
		if st.previews["mod-1"] != "data:converted" {
			t.Errorf("preview = %q", st.previews["mod-1"])
		}
	})

	t.Run("absent preview is not an error", func(t *testing.T) {
		st := newStubStore()
		fetcher := &stubFetcher{previewErr: errors.New("403")}
		desc := testDescriptor()
		desc.PreviewURL = ""
		o := newTestOrchestrator(fetcher, st, nil, Options{GracePeriod: time.Minute})

		if err := o.Download(context.Background(), desc); err != nil {
			t.Fatal(err)
		}
		if _, ok := st.previews["mod-1"]; ok {
			t.Error("preview saved despite all sources missing")
		}
		if _, ok := st.artifacts["mod-1"]; !ok {
			t.Error("artifact not persisted")
		}
	})
}

func TestCancelAffectsOnlyPendingTasks(t *testing.T) {
	st := newStubStore()
	fetcher := &stubFetcher{}
	o := newTestOrchestrator(fetcher, st, nil, Options{GracePeriod: time.Minute})

	if o.Cancel("unknown") {
		t.Error("Cancel succeeded for unknown task")
	}

	o.beforeStart = func(id string) {
		if !o.Cancel(id) {
			t.Error("Cancel failed for pending task")
		}
	}
	err := o.Download(context.Background(), testDescriptor())
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v, want %v", err, ErrCanceled)
	}
	if fetcher.calls() != 0 {
		t.Errorf("canceled download still transferred")
	}
	if len(st.history) != 1 || st.history[0].Status != store.HistoryFailed {
		t.Errorf("history = %+v", st.history)
	}

	// Terminal tasks cannot be canceled.
	if o.Cancel("mod-1") {
		t.Error("Cancel succeeded for terminal task")
	}
}

func TestTerminalTaskRemovedAfterGraceWindow(t *testing.T) {
	st := newStubStore()
	o := newTestOrchestrator(&stubFetcher{}, st, nil, Options{GracePeriod: 20 * time.Millisecond})

	if err := o.Download(context.Background(), testDescriptor()); err != nil {
		t.Fatal(err)
	}
	if _, ok := o.Progress("mod-1"); !ok {
		t.Fatal("completed task missing inside grace window")
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := o.Progress("mod-1"); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("task not removed after grace window")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInsufficientSpaceRejectsDownload(t *testing.T) {
	st := newStubStore()
	fetcher := &stubFetcher{}
	o := NewOrchestrator(fetcher, st, nil, Options{
		GracePeriod:  time.Minute,
		MinFreeBytes: 100 * 1024 * 1024,
		DataDir:      t.TempDir(),
	}, logging.NewNop())
	o.freeBytes = func(string) (uint64, error) { return 1024, nil }

	err := o.Download(context.Background(), testDescriptor())
	if err == nil {
		t.Fatal("expected insufficient space error")
	}
	if fetcher.calls() != 0 {
		t.Errorf("transfer started despite low disk space")
	}
	if len(st.history) != 1 || st.history[0].Status != store.HistoryFailed {
		t.Errorf("history = %+v", st.history)
	}
}

func TestSubscribeReceivesImmediateSnapshot(t *testing.T) {
	st := newStubStore()
	o := newTestOrchestrator(&stubFetcher{}, st, nil, Options{GracePeriod: time.Minute})

	var mu sync.Mutex
	var snapshots []map[string]Task
	unsubscribe := o.Subscribe(func(snap map[string]Task) {
		mu.Lock()
		snapshots = append(snapshots, snap)
		mu.Unlock()
	})
	defer unsubscribe()

	mu.Lock()
	if len(snapshots) != 1 || len(snapshots[0]) != 0 {
		t.Fatalf("immediate snapshot = %+v", snapshots)
	}
	mu.Unlock()

	if err := o.Download(context.Background(), testDescriptor()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	last := snapshots[len(snapshots)-1]
	mu.Unlock()
	task, ok := last["mod-1"]
	if !ok || task.Status != StatusCompleted {
		t.Errorf("final snapshot task = %+v ok=%v", task, ok)
	}

	unsubscribe()
	mu.Lock()
	count := len(snapshots)
	mu.Unlock()
	o.Cancel("mod-1")
	o.publish()
	mu.Lock()
	if len(snapshots) != count {
		t.Error("unsubscribed callback still invoked")
	}
	mu.Unlock()
}
