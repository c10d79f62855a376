package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"modvault/internal/catalog"
	"modvault/internal/config"
	"modvault/internal/logging"
	"modvault/internal/notifications"
	"modvault/internal/store"
)

// ErrCanceled is returned when a pending download is canceled before its
// transfer starts.
var ErrCanceled = errors.New("download canceled")

// Fetcher transfers artifact packages and previews. Implementations must be
// safe for concurrent use.
type Fetcher interface {
	FetchArtifact(ctx context.Context, artifactID, packageURL, name string) (*FetchResult, error)
	FetchPreview(ctx context.Context, artifactID string) (*PreviewResult, error)
}

// Store is the persistence surface the orchestrator needs. *store.Store
// satisfies it.
type Store interface {
	HasArtifact(ctx context.Context, id string) (bool, error)
	PutArtifact(ctx context.Context, artifact *store.Artifact) error
	SavePreview(ctx context.Context, artifactID, dataURL string) error
	AppendHistory(ctx context.Context, entry *store.HistoryEntry) error
}

// PreviewConverter turns a plain remote preview URL into a storable data URL.
// *catalog.Client satisfies it.
type PreviewConverter interface {
	ConvertRemote(ctx context.Context, url string) (string, error)
}

// Options tunes orchestrator behavior.
type Options struct {
	// GracePeriod is how long a terminal task stays visible before removal.
	GracePeriod time.Duration
	// MinFreeBytes rejects new downloads when the data volume has less free
	// space than this. Zero disables the check.
	MinFreeBytes uint64
	// DataDir is the volume probed for free space.
	DataDir string
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{GracePeriod: 5 * time.Second}
}

// OptionsFromConfig maps the downloads section of the config file onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg.Downloads.GracePeriodSeconds > 0 {
		opts.GracePeriod = time.Duration(cfg.Downloads.GracePeriodSeconds) * time.Second
	}
	if cfg.Downloads.MinFreeMiB > 0 {
		opts.MinFreeBytes = uint64(cfg.Downloads.MinFreeMiB) * 1024 * 1024
	}
	opts.DataDir = cfg.Paths.DataDir
	return opts
}

// flight is the shared outcome of one in-progress transfer. Joiners wait on
// done; success and err are immutable once done is closed.
type flight struct {
	done    chan struct{}
	success bool
	err     error
}

type taskState struct {
	Task
	canceled bool
}

// Orchestrator deduplicates downloads per artifact, persists outcomes, and
// publishes task snapshots to subscribers.
type Orchestrator struct {
	fetcher   Fetcher
	store     Store
	converter PreviewConverter
	notifier  notifications.Service
	opts      Options
	logger    *slog.Logger

	// test seams
	freeBytes   func(path string) (uint64, error)
	beforeStart func(artifactID string)

	mu       sync.Mutex
	tasks    map[string]*taskState
	inflight map[string]*flight
	subs     map[int]func(map[string]Task)
	nextSub  int
}

// NewOrchestrator wires an orchestrator. converter may be nil; the remote
// conversion fallback for previews is then skipped.
func NewOrchestrator(fetcher Fetcher, st Store, converter PreviewConverter, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultOptions().GracePeriod
	}
	return &Orchestrator{
		fetcher:   fetcher,
		store:     st,
		converter: converter,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "download"),
		freeBytes: store.FreeBytes,
		tasks:     make(map[string]*taskState),
		inflight:  make(map[string]*flight),
		subs:      make(map[int]func(map[string]Task)),
	}
}

// SetNotifier attaches a notification service for terminal outcomes. Call it
// before the first Download.
func (o *Orchestrator) SetNotifier(notifier notifications.Service) {
	o.notifier = notifier
}

// Download fetches and persists the described artifact. It returns nil once
// the artifact is stored, either by this call or by an earlier one. Concurrent
// calls for the same artifact share a single transfer and receive the same
// outcome. Transfer failures are recorded on the task and in history and
// returned as the error.
func (o *Orchestrator) Download(ctx context.Context, desc *catalog.Descriptor) error {
	if desc == nil || desc.ID == "" {
		return errors.New("download: descriptor missing artifact id")
	}

	if ok, err := o.store.HasArtifact(ctx, desc.ID); err != nil {
		return fmt.Errorf("check stored artifact: %w", err)
	} else if ok {
		o.logger.DebugContext(ctx, "artifact already stored",
			logging.String(logging.FieldArtifactID, desc.ID))
		return nil
	}

	o.mu.Lock()
	if fl, ok := o.inflight[desc.ID]; ok {
		o.mu.Unlock()
		select {
		case <-fl.done:
			return fl.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	fl := &flight{done: make(chan struct{})}
	o.inflight[desc.ID] = fl
	o.tasks[desc.ID] = &taskState{Task: Task{
		ArtifactID: desc.ID,
		Name:       desc.Name,
		Status:     StatusPending,
		StartedAt:  time.Now(),
	}}
	o.mu.Unlock()
	o.publish()

	err := o.run(ctx, desc)

	o.mu.Lock()
	fl.err = err
	fl.success = err == nil
	delete(o.inflight, desc.ID)
	o.mu.Unlock()
	close(fl.done)
	return err
}

func (o *Orchestrator) run(ctx context.Context, desc *catalog.Descriptor) error {
	if o.beforeStart != nil {
		o.beforeStart(desc.ID)
	}

	if err := o.admit(); err != nil {
		return o.fail(ctx, desc, err)
	}

	o.mu.Lock()
	state := o.tasks[desc.ID]
	if state.canceled {
		o.mu.Unlock()
		return o.fail(ctx, desc, ErrCanceled)
	}
	state.Status = StatusDownloading
	o.mu.Unlock()
	o.publish()

	result, err := o.fetcher.FetchArtifact(ctx, desc.ID, desc.PackageURL, desc.Name)
	if err != nil {
		return o.fail(ctx, desc, err)
	}
	if !result.Success {
		return o.fail(ctx, desc, fmt.Errorf("transfer failed: %s", result.Error))
	}

	// The preview is written before the artifact record so a subscriber that
	// reacts to the catalog change never observes an artifact without its
	// stored preview.
	if dataURL := o.resolvePreview(ctx, desc); dataURL != "" {
		if err := o.store.SavePreview(ctx, desc.ID, dataURL); err != nil {
			o.logger.WarnContext(ctx, "save preview failed",
				logging.String(logging.FieldArtifactID, desc.ID),
				logging.Error(err))
		}
	}

	size := result.SizeBytes
	if size == 0 {
		size = desc.SizeBytes
	}
	artifact := &store.Artifact{
		ID:           desc.ID,
		Name:         desc.Name,
		Author:       desc.Author,
		Tags:         desc.Tags,
		SizeBytes:    size,
		LocalPath:    result.LocalPath,
		DownloadedAt: time.Now(),
	}
	if err := o.store.PutArtifact(ctx, artifact); err != nil {
		return o.fail(ctx, desc, fmt.Errorf("persist artifact: %w", err))
	}

	o.setTerminal(desc.ID, StatusCompleted, "")
	o.appendHistory(ctx, desc, store.HistoryCompleted, "")
	o.publish()
	o.scheduleRemoval(desc.ID)
	o.announce(ctx, notifications.EventDownloadCompleted, notifications.Payload{"name": desc.Name})
	o.logger.InfoContext(ctx, "download completed",
		logging.String(logging.FieldArtifactID, desc.ID),
		logging.Int64("size_bytes", size))
	return nil
}

// admit rejects new work when the data volume is low on space. An unknown
// free-space reading never blocks a download.
func (o *Orchestrator) admit() error {
	if o.opts.MinFreeBytes == 0 || o.opts.DataDir == "" {
		return nil
	}
	free, err := o.freeBytes(o.opts.DataDir)
	if err != nil || free == 0 {
		return nil
	}
	if free < o.opts.MinFreeBytes {
		return fmt.Errorf("insufficient disk space: %d bytes free, need %d", free, o.opts.MinFreeBytes)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, desc *catalog.Descriptor, cause error) error {
	o.setTerminal(desc.ID, StatusFailed, cause.Error())
	o.appendHistory(ctx, desc, store.HistoryFailed, cause.Error())
	o.publish()
	o.scheduleRemoval(desc.ID)
	o.announce(ctx, notifications.EventDownloadFailed, notifications.Payload{
		"name":  desc.Name,
		"error": cause.Error(),
	})
	o.logger.WarnContext(ctx, "download failed",
		logging.String(logging.FieldArtifactID, desc.ID),
		logging.Error(cause))
	return cause
}

// announce publishes a notification best effort on a detached context.
func (o *Orchestrator) announce(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		o.logger.DebugContext(ctx, "notification failed", logging.Error(err))
	}
}

// resolvePreview tries preview sources in order of fidelity: the authenticated
// per-artifact fetch, an inline data URL shipped with the descriptor, then a
// plain remote URL converted to a data URL. Absence of a preview is not an
// error.
func (o *Orchestrator) resolvePreview(ctx context.Context, desc *catalog.Descriptor) string {
	result, err := o.fetcher.FetchPreview(ctx, desc.ID)
	if err == nil && result != nil && result.Success && result.DataURL != "" {
		return result.DataURL
	}
	if err != nil {
		o.logger.DebugContext(ctx, "preview fetch failed",
			logging.String(logging.FieldArtifactID, desc.ID),
			logging.Error(err))
	}
	if desc.PreviewData != "" {
		return desc.PreviewData
	}
	if desc.PreviewURL != "" && o.converter != nil {
		dataURL, err := o.converter.ConvertRemote(ctx, desc.PreviewURL)
		if err == nil {
			return dataURL
		}
		o.logger.DebugContext(ctx, "preview conversion failed",
			logging.String(logging.FieldURL, desc.PreviewURL),
			logging.Error(err))
	}
	return ""
}

func (o *Orchestrator) setTerminal(id string, status Status, errMsg string) {
	o.mu.Lock()
	if state, ok := o.tasks[id]; ok {
		state.Status = status
		state.Error = errMsg
		state.CompletedAt = time.Now()
	}
	o.mu.Unlock()
}

// appendHistory records the terminal outcome. History is best effort: a write
// failure is logged and never changes the download result. The write uses a
// detached context so a canceled download still gets its history row.
func (o *Orchestrator) appendHistory(ctx context.Context, desc *catalog.Descriptor, status store.HistoryStatus, errMsg string) {
	entry := &store.HistoryEntry{
		ArtifactID: desc.ID,
		Name:       desc.Name,
		Status:     status,
		Error:      errMsg,
		CreatedAt:  time.Now(),
	}
	if err := o.store.AppendHistory(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.WarnContext(ctx, "append history failed",
			logging.String(logging.FieldArtifactID, desc.ID),
			logging.Error(err))
	}
}

// scheduleRemoval drops a terminal task after the grace window. A new download
// for the same artifact resets the task to a non-terminal state and defuses
// the pending removal.
func (o *Orchestrator) scheduleRemoval(id string) {
	time.AfterFunc(o.opts.GracePeriod, func() {
		o.mu.Lock()
		state, ok := o.tasks[id]
		if !ok || !state.Status.Terminal() {
			o.mu.Unlock()
			return
		}
		delete(o.tasks, id)
		o.mu.Unlock()
		o.publish()
	})
}

// Cancel aborts a pending download. It has no effect once the transfer has
// started or finished.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.tasks[id]
	if !ok || state.Status != StatusPending || state.canceled {
		return false
	}
	state.canceled = true
	return true
}

// IsDownloading reports whether a task for the artifact is pending or in
// transfer.
func (o *Orchestrator) IsDownloading(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.tasks[id]
	return ok && !state.Status.Terminal()
}

// Progress returns a snapshot of the task for the artifact, including terminal
// tasks still inside their grace window.
func (o *Orchestrator) Progress(id string) (Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.tasks[id]
	if !ok {
		return Task{}, false
	}
	return state.Task, true
}

// Snapshot returns a copy of all visible tasks keyed by artifact id.
func (o *Orchestrator) Snapshot() map[string]Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() map[string]Task {
	snap := make(map[string]Task, len(o.tasks))
	for id, state := range o.tasks {
		snap[id] = state.Task
	}
	return snap
}

// Subscribe registers a callback for task snapshots. The callback is invoked
// immediately with the current state, then after every change. The returned
// function removes the subscription.
func (o *Orchestrator) Subscribe(fn func(map[string]Task)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	snap := o.snapshotLocked()
	o.mu.Unlock()
	fn(snap)
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) publish() {
	o.mu.Lock()
	fns := make([]func(map[string]Task), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(o.Snapshot())
	}
}
