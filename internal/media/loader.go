package media

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"modvault/internal/config"
	"modvault/internal/logging"
	"modvault/internal/lru"
)

// Priority orders preload requests. Lower values drain first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow

	priorityLevels = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Fetcher retrieves raw resource bytes. The transport client satisfies this
// through TransportFetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Resource is a fetched preview held in the cache.
type Resource struct {
	URL    string
	Data   []byte
	Width  int
	Height int
}

// Status is the loader snapshot pushed to listeners after every state change.
type Status struct {
	Queued      int
	InFlight    int
	Loaded      int
	Failed      int
	MemoryBytes int64
}

// Options configures the loader.
type Options struct {
	CacheCapacity   int64
	Concurrency     int
	MemoryThreshold int64
	CleanupBatch    int
	MonitorInterval time.Duration
	WarmStartDelay  time.Duration
	WarmBatchPause  time.Duration
}

// DefaultOptions returns options with repository defaults.
func DefaultOptions() Options {
	return Options{
		CacheCapacity:   256 << 20,
		Concurrency:     3,
		MemoryThreshold: 200 << 20,
		CleanupBatch:    20,
		MonitorInterval: 30 * time.Second,
		WarmStartDelay:  5 * time.Second,
		WarmBatchPause:  750 * time.Millisecond,
	}
}

// OptionsFromConfig maps the [media_cache] config section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return DefaultOptions()
	}
	return Options{
		CacheCapacity:   cfg.MediaCache.CapacityBytes,
		Concurrency:     cfg.MediaCache.Concurrency,
		MemoryThreshold: cfg.MediaCache.MemoryThresholdBytes,
		CleanupBatch:    cfg.MediaCache.CleanupBatchSize,
		MonitorInterval: time.Duration(cfg.MediaCache.MonitorIntervalSeconds) * time.Second,
		WarmStartDelay:  time.Duration(cfg.MediaCache.WarmStartDelaySeconds) * time.Second,
		WarmBatchPause:  time.Duration(cfg.MediaCache.WarmBatchPauseMillis) * time.Millisecond,
	}
}

type queueItem struct {
	url      string
	priority Priority
}

// Loader drains a priority queue of preview fetches with bounded concurrency.
type Loader struct {
	fetcher Fetcher
	cache   *lru.Cache[*Resource]
	logger  *slog.Logger
	opts    Options

	mu           sync.Mutex
	queue        [priorityLevels][]queueItem
	pending      map[string]struct{} // queued or in flight
	inFlight     int
	failed       map[string]string
	waiters      map[string][]chan error
	draining     bool
	listeners    map[int]func(Status)
	nextListener int
}

// NewLoader constructs a loader. A nil logger is replaced with a no-op logger.
func NewLoader(fetcher Fetcher, opts Options, logger *slog.Logger) *Loader {
	defaults := DefaultOptions()
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = defaults.CacheCapacity
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.MemoryThreshold <= 0 {
		opts.MemoryThreshold = defaults.MemoryThreshold
	}
	if opts.CleanupBatch < 1 {
		opts.CleanupBatch = defaults.CleanupBatch
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = defaults.MonitorInterval
	}
	return &Loader{
		fetcher:   fetcher,
		cache:     lru.New[*Resource](opts.CacheCapacity),
		logger:    logging.NewComponentLogger(logger, "media"),
		opts:      opts,
		pending:   make(map[string]struct{}),
		failed:    make(map[string]string),
		waiters:   make(map[string][]chan error),
		listeners: make(map[int]func(Status)),
	}
}

// Preload schedules url at the given priority and returns a completion signal.
// URLs that are already cached or in flight join the existing outcome; URLs
// already marked failed resolve immediately with the recorded failure.
func (l *Loader) Preload(ctx context.Context, url string, priority Priority) <-chan error {
	done := make(chan error, 1)

	if _, ok := l.cache.Get(url); ok {
		done <- nil
		close(done)
		return done
	}

	l.mu.Lock()
	if msg, ok := l.failed[url]; ok {
		l.mu.Unlock()
		done <- &LoadError{URL: url, Message: msg}
		close(done)
		return done
	}
	if _, ok := l.pending[url]; ok {
		l.waiters[url] = append(l.waiters[url], done)
		l.mu.Unlock()
		return done
	}

	l.pending[url] = struct{}{}
	l.waiters[url] = append(l.waiters[url], done)
	l.enqueueLocked(queueItem{url: url, priority: priority})
	l.mu.Unlock()

	l.publishStatus()
	l.kick(ctx)
	return done
}

// PreloadMany fans Preload out over urls at a single priority.
func (l *Loader) PreloadMany(ctx context.Context, urls []string, priority Priority) []<-chan error {
	signals := make([]<-chan error, 0, len(urls))
	for _, url := range urls {
		signals = append(signals, l.Preload(ctx, url, priority))
	}
	return signals
}

// PreloadActive loads everything the active view needs now: the first url at
// critical priority (the hero image), the rest at high. The returned channel
// closes once every requested url has settled.
func (l *Loader) PreloadActive(ctx context.Context, urls []string) <-chan struct{} {
	all := make(chan struct{})
	signals := make([]<-chan error, 0, len(urls))
	for i, url := range urls {
		priority := PriorityHigh
		if i == 0 {
			priority = PriorityCritical
		}
		signals = append(signals, l.Preload(ctx, url, priority))
	}
	go func() {
		defer close(all)
		for _, signal := range signals {
			select {
			case <-signal:
			case <-ctx.Done():
				return
			}
		}
	}()
	return all
}

// WarmCatalog opportunistically warms the remaining catalog in the background:
// low priority, a startup delay, and a pause between batches so warming never
// competes with interactive loads.
func (l *Loader) WarmCatalog(ctx context.Context, urls []string) {
	go func() {
		if l.opts.WarmStartDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.opts.WarmStartDelay):
			}
		}
		for start := 0; start < len(urls); start += l.opts.Concurrency {
			end := min(start+l.opts.Concurrency, len(urls))
			signals := l.PreloadMany(ctx, urls[start:end], PriorityLow)
			for _, signal := range signals {
				select {
				case <-signal:
				case <-ctx.Done():
					return
				}
			}
			if end < len(urls) && l.opts.WarmBatchPause > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.opts.WarmBatchPause):
				}
			}
		}
	}()
}

// IsLoaded reports whether url is resident without touching recency order.
func (l *Loader) IsLoaded(url string) bool {
	return l.cache.Peek(url)
}

// Cached returns the resident resource for url, promoting it to most recently
// used.
func (l *Loader) Cached(url string) (*Resource, bool) {
	return l.cache.Get(url)
}

// Failed reports whether url has a recorded failure.
func (l *Loader) Failed(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.failed[url]
	return ok
}

// ClearFailed forgets recorded failures so callers can explicitly retry.
func (l *Loader) ClearFailed() {
	l.mu.Lock()
	l.failed = make(map[string]string)
	l.mu.Unlock()
	l.publishStatus()
}

// Status returns the current snapshot.
func (l *Loader) Status() Status {
	l.mu.Lock()
	queued := 0
	for _, level := range l.queue {
		queued += len(level)
	}
	inFlight := l.inFlight
	failed := len(l.failed)
	l.mu.Unlock()

	return Status{
		Queued:      queued,
		InFlight:    inFlight,
		Loaded:      l.cache.Len(),
		Failed:      failed,
		MemoryBytes: l.cache.Cost(),
	}
}

// Subscribe registers a status listener, delivers an immediate synchronous
// snapshot, and returns an unsubscribe function.
func (l *Loader) Subscribe(fn func(Status)) func() {
	l.mu.Lock()
	id := l.nextListener
	l.nextListener++
	l.listeners[id] = fn
	l.mu.Unlock()

	fn(l.Status())
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

// StartMonitor launches the periodic memory-pressure monitor. It runs until
// ctx is canceled, independent of queue activity.
func (l *Loader) StartMonitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.opts.MonitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.pressureCheck(ctx)
			}
		}
	}()
}

// pressureCheck evicts one cleanup batch when tracked cost exceeds the
// configured threshold.
func (l *Loader) pressureCheck(ctx context.Context) {
	cost := l.cache.Cost()
	if cost <= l.opts.MemoryThreshold {
		return
	}
	evicted := l.cache.Evict(l.opts.CleanupBatch)
	l.logger.InfoContext(ctx, "memory pressure eviction",
		logging.Int64("tracked_bytes", cost),
		logging.Int64("threshold_bytes", l.opts.MemoryThreshold),
		logging.Int("evicted", evicted),
	)
	l.publishStatus()
}

// enqueueLocked appends to the per-priority FIFO, preserving arrival order
// within a level. Caller holds the lock.
func (l *Loader) enqueueLocked(item queueItem) {
	level := item.priority
	if level < 0 || level >= priorityLevels {
		level = PriorityNormal
	}
	l.queue[level] = append(l.queue[level], item)
}

// kick starts the drain loop unless one is already running. A second
// invocation observes the draining flag and returns immediately.
func (l *Loader) kick(ctx context.Context) {
	l.mu.Lock()
	if l.draining {
		l.mu.Unlock()
		return
	}
	l.draining = true
	l.mu.Unlock()
	go l.drain(ctx)
}

// drain pulls batches of up to Concurrency items, highest priority first, and
// fetches each batch concurrently. It exits once the queue empties.
func (l *Loader) drain(ctx context.Context) {
	for {
		batch := l.popBatch()
		if len(batch) == 0 {
			l.mu.Lock()
			// Re-check under the lock: a Preload may have enqueued between
			// popBatch and here.
			empty := true
			for _, level := range l.queue {
				if len(level) > 0 {
					empty = false
					break
				}
			}
			if empty {
				l.draining = false
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			continue
		}

		var wg sync.WaitGroup
		for _, item := range batch {
			wg.Add(1)
			go func(item queueItem) {
				defer wg.Done()
				l.fetchOne(ctx, item)
			}(item)
		}
		wg.Wait()
		l.publishStatus()
	}
}

func (l *Loader) popBatch() []queueItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := make([]queueItem, 0, l.opts.Concurrency)
	for level := 0; level < priorityLevels && len(batch) < l.opts.Concurrency; level++ {
		for len(l.queue[level]) > 0 && len(batch) < l.opts.Concurrency {
			batch = append(batch, l.queue[level][0])
			l.queue[level] = l.queue[level][1:]
		}
	}
	l.inFlight += len(batch)
	return batch
}

func (l *Loader) fetchOne(ctx context.Context, item queueItem) {
	data, err := l.fetcher.Fetch(ctx, item.url)

	l.mu.Lock()
	l.inFlight--
	delete(l.pending, item.url)
	waiters := l.waiters[item.url]
	delete(l.waiters, item.url)

	var result error
	if err != nil {
		l.failed[item.url] = err.Error()
		result = &LoadError{URL: item.url, Message: err.Error()}
	}
	l.mu.Unlock()

	if err == nil {
		resource, cost := decodeResource(item.url, data)
		l.cache.Set(item.url, resource, cost)
		l.logger.DebugContext(ctx, "preview loaded",
			logging.String(logging.FieldURL, item.url),
			logging.Int64("cost_bytes", cost),
		)
	} else {
		l.logger.WarnContext(ctx, "preview load failed",
			logging.String(logging.FieldURL, item.url),
			logging.Error(err),
		)
	}

	for _, waiter := range waiters {
		waiter <- result
		close(waiter)
	}
	l.publishStatus()
}

func (l *Loader) publishStatus() {
	status := l.Status()

	l.mu.Lock()
	listeners := make([]func(Status), 0, len(l.listeners))
	for _, fn := range l.listeners {
		listeners = append(listeners, fn)
	}
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}
