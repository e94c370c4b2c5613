package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"venue-rails/pkg/metrics"
)

// Change describes one configuration reload. Fields lists the keys that
// moved; a reload that failed validation carries Err and changes nothing.
type Change struct {
	Old    *Config
	New    *Config
	Fields []string
	Err    error
}

// Subscriber channels stay small so a stuck receiver sheds notifications
// instead of stalling the poll loop.
const subBuf = 4

// Watcher polls the environment for configuration changes. When CONFIG_FILE
// names a .env file, the watcher re-reads it whenever its mtime moves, so
// edits on disk surface without a restart. Accepted reloads are pushed into
// the flag source before subscribers hear about them.
type Watcher struct {
	interval time.Duration
	envFile  string
	flags    *FlagSource

	mu      sync.RWMutex
	cur     *Config
	subs    []chan Change
	stop    chan struct{}
	stopped sync.Once
	started bool

	lastMTime time.Time
}

// NewWatcher builds a watcher around the given flag source. The initial
// snapshot comes from the current environment.
func NewWatcher(interval time.Duration, flags *FlagSource) *Watcher {
	return &Watcher{
		interval: interval,
		envFile:  strings.TrimSpace(os.Getenv("CONFIG_FILE")),
		flags:    flags,
		cur:      Load(),
		stop:     make(chan struct{}),
	}
}

// Subscribe returns a channel of reload notifications. The channel closes
// when the watcher does.
func (w *Watcher) Subscribe() <-chan Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan Change, subBuf)
	w.subs = append(w.subs, ch)
	return ch
}

// Start launches the poll loop. Calling it twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		t := time.NewTicker(w.interval)
		defer t.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-t.C:
				w.poll()
			}
		}
	}()
}

// Close stops polling and closes every subscriber channel.
func (w *Watcher) Close() {
	w.stopped.Do(func() {
		close(w.stop)
		w.mu.Lock()
		for _, s := range w.subs {
			close(s)
		}
		w.subs = nil
		w.mu.Unlock()
	})
}

func (w *Watcher) poll() {
	w.maybeReloadEnvFile()

	next := Load()
	if err := next.Validate(); err != nil {
		metrics.ConfigReloadFailures.Inc()
		w.notify(Change{Old: w.cur, New: next, Err: fmt.Errorf("invalid config: %w", err)})
		return
	}

	fields := changedFields(w.cur, next)
	if len(fields) == 0 {
		return
	}

	metrics.ConfigReloads.Inc()
	w.mu.Lock()
	old := w.cur
	w.cur = next
	w.mu.Unlock()

	if w.flags != nil {
		w.flags.Replace(next.Flags)
	}
	w.notify(Change{Old: old, New: next, Fields: fields})
}

// maybeReloadEnvFile overlays CONFIG_FILE's variables onto the environment
// when the file has been rewritten since the last poll.
func (w *Watcher) maybeReloadEnvFile() {
	if w.envFile == "" {
		return
	}
	fi, err := os.Stat(w.envFile)
	if err != nil || !fi.ModTime().After(w.lastMTime) {
		return
	}
	w.lastMTime = fi.ModTime()
	_ = godotenv.Overload(w.envFile)
}

func (w *Watcher) notify(chg Change) {
	w.mu.RLock()
	subs := append([]chan Change(nil), w.subs...)
	w.mu.RUnlock()
	for _, s := range subs {
		select {
		case s <- chg:
		default:
			// slow receiver, drop
		}
	}
}

// watched maps the hot-reloadable keys to their comparisons. Keys absent
// here need a restart to change.
var watched = []struct {
	name string
	diff func(a, b *Config) bool
}{
	{"WorkerCount", func(a, b *Config) bool { return a.WorkerCount != b.WorkerCount }},
	{"LogLevel", func(a, b *Config) bool { return a.LogLevel != b.LogLevel }},
	{"LogFormat", func(a, b *Config) bool { return a.LogFormat != b.LogFormat }},
	{"EnableFileLogging", func(a, b *Config) bool { return a.EnableFileLogging != b.EnableFileLogging }},
	{"Metrics", func(a, b *Config) bool { return a.MetricsEnabled != b.MetricsEnabled || a.MetricsPath != b.MetricsPath }},
	{"Profiling", func(a, b *Config) bool { return a.ProfilingEnabled != b.ProfilingEnabled }},
	{"DefaultRadiusM", func(a, b *Config) bool { return a.DefaultRadiusM != b.DefaultRadiusM }},
	{"DefaultRailLength", func(a, b *Config) bool { return a.DefaultRailLength != b.DefaultRailLength }},
	{"RefreshInterval", func(a, b *Config) bool { return a.RefreshInterval != b.RefreshInterval }},
	{"Flags", func(a, b *Config) bool { return a.Flags != b.Flags }},
}

func changedFields(a, b *Config) []string {
	if a == nil || b == nil {
		return []string{"all"}
	}
	var fields []string
	for _, wd := range watched {
		if wd.diff(a, b) {
			fields = append(fields, wd.name)
		}
	}
	return fields
}
