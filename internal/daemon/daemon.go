package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/msageha/steplock/internal/blocker"
	"github.com/msageha/steplock/internal/cycle"
	"github.com/msageha/steplock/internal/events"
	"github.com/msageha/steplock/internal/gate"
	"github.com/msageha/steplock/internal/health"
	"github.com/msageha/steplock/internal/history"
	"github.com/msageha/steplock/internal/journal"
	"github.com/msageha/steplock/internal/lock"
	"github.com/msageha/steplock/internal/model"
	"github.com/msageha/steplock/internal/notify"
	"github.com/msageha/steplock/internal/pending"
	"github.com/msageha/steplock/internal/sched"
	"github.com/msageha/steplock/internal/shield"
	"github.com/msageha/steplock/internal/store"
	"github.com/msageha/steplock/internal/uds"
	"github.com/msageha/steplock/internal/unlock"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func parseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Daemon is the main steplock daemon process. It owns every mutable
// component (pending slot, shields, unlock registry), watches the metrics
// drop file, and serves the UDS control plane the CLI talks to.
type Daemon struct {
	steplockDir string
	config      model.Config
	logLevel    LogLevel
	logger      *log.Logger
	logFile     io.Closer

	fileLock *lock.FileLock
	server   *uds.Server
	watcher  *fsnotify.Watcher
	ticker   *time.Ticker
	debounce time.Duration

	clock     cycle.Clock
	calendar  cycle.Calendar
	store     store.Store
	manager   *pending.Manager
	shields   *shield.Controller
	registry  *unlock.Registry
	scheduler *sched.TimerScheduler
	health    health.Reader
	bus       *events.Bus
	journal   *journal.Journal
	history   *history.Store

	refresh singleflight.Group

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once

	forceExit atomic.Bool
}

// New creates a new Daemon instance.
func New(steplockDir string, cfg model.Config) (*Daemon, error) {
	logPath := filepath.Join(steplockDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(steplockDir, "locks"), 0755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}

	return newDaemon(steplockDir, cfg, logFile, logFile)
}

// newDaemon is the internal constructor for testing.
func newDaemon(steplockDir string, cfg model.Config, w io.Writer, closer io.Closer) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	loc := time.Local
	if cfg.Clock.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Clock.Timezone)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Clock.Timezone, err)
		}
	}
	calendar := cycle.NewCalendar(loc)
	clock := cycle.WallClock{}

	anchor := cfg.Goals.Anchor
	if anchor.Cycle == "" {
		anchor.Cycle = model.CycleDaily
	}
	if err := anchor.Validate(); err != nil {
		cancel()
		return nil, fmt.Errorf("goals anchor: %w", err)
	}
	cfg.Goals.Anchor = anchor

	st := store.NewFileStore(steplockDir, cfg.Limits.MaxYAMLFileBytes)
	manager, err := pending.NewManager(st, clock, calendar, anchor)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("load goal state: %w", err)
	}

	shields := shield.NewController(st, blocker.NewExec(cfg.Blocker), clock)
	scheduler := sched.NewTimerScheduler(loc)
	registry := unlock.NewRegistry(scheduler, shields, st, clock)

	jr, err := journal.NewJournal(filepath.Join(steplockDir, "logs", "journal.jsonl"), cfg.Journal.MaxSizeBytes)
	if err != nil {
		cancel()
		scheduler.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	jr.EnableChecksum(cfg.Journal.Checksum)

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(filepath.Join(steplockDir, "history.db"))
		if err != nil {
			cancel()
			scheduler.Close()
			jr.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
	}

	scanInterval := cfg.Watcher.ScanIntervalSec
	if scanInterval <= 0 {
		scanInterval = 60
	}
	debounce := time.Duration(cfg.Watcher.DebounceSec * float64(time.Second))
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	d := &Daemon{
		steplockDir: steplockDir,
		config:      cfg,
		logLevel:    parseLogLevel(cfg.Logging.Level),
		logger:      log.New(w, "", 0),
		logFile:     closer,
		fileLock:    lock.NewFileLock(filepath.Join(steplockDir, "locks", "daemon.lock")),
		server:      uds.NewServer(filepath.Join(steplockDir, uds.DefaultSocketName)),
		ticker:      time.NewTicker(time.Duration(scanInterval) * time.Second),
		debounce:    debounce,
		clock:       clock,
		calendar:    calendar,
		store:       st,
		manager:     manager,
		shields:     shields,
		registry:    registry,
		scheduler:   scheduler,
		health:      health.NewFileReader(steplockDir, cfg.Limits.MaxYAMLFileBytes, calendar),
		bus:         events.NewBus(100),
		journal:     jr,
		history:     hist,
		ctx:         ctx,
		cancel:      cancel,
	}
	d.server.SetLogf(func(format string, args ...any) {
		d.log(LogLevelWarn, format, args...)
	})

	return d, nil
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	// Step 1: Acquire file lock
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.log(LogLevelInfo, "daemon starting pid=%d", os.Getpid())

	// Step 2: Init fsnotify watcher on the metrics drop directory
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.fileLock.Unlock()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.watcher = watcher

	metricsDir := filepath.Join(d.steplockDir, "metrics")
	if err := os.MkdirAll(metricsDir, 0755); err != nil {
		d.cleanup()
		return fmt.Errorf("ensure dir %s: %w", metricsDir, err)
	}
	if err := watcher.Add(metricsDir); err != nil {
		d.cleanup()
		return fmt.Errorf("watch %s: %w", metricsDir, err)
	}

	// Step 3: Wire journal and notification subscribers
	d.wireSubscribers()

	// Step 4: Register UDS handlers
	d.registerHandlers()

	// Step 5: Start UDS server
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}
	d.log(LogLevelInfo, "UDS server listening on %s", filepath.Join(d.steplockDir, uds.DefaultSocketName))

	// Step 6: Re-register the persisted unlock window and align it with the
	// active configuration
	if restored, err := d.registry.Restore(); err != nil {
		d.log(LogLevelError, "restore unlock window: %v", err)
	} else if restored {
		d.log(LogLevelInfo, "unlock window restored minute=%d", d.registry.State().MinuteOfDay)
	}
	if err := d.syncUnlockSchedule(); err != nil {
		d.log(LogLevelError, "sync unlock schedule: %v", err)
	}

	// Step 7: Start background loops
	d.wg.Add(3)
	go d.fsnotifyLoop()
	go d.tickerLoop()
	go d.triggerLoop()

	// Step 8: Run initial evaluation
	if _, err := d.refreshShields("startup"); err != nil {
		d.log(LogLevelWarn, "initial refresh: %v", err)
	}
	d.log(LogLevelInfo, "daemon ready")

	// Step 9: Wait for signals
	d.waitSignals()

	return nil
}

// wireSubscribers attaches the journal sink and, when enabled, the
// desktop-notification sinks to the event bus. Delivery is asynchronous
// and best-effort.
func (d *Daemon) wireSubscribers() {
	journalTypes := []events.EventType{
		events.EventPendingSet,
		events.EventPendingApplied,
		events.EventPendingCancelled,
		events.EventShieldsUpdated,
		events.EventUnlockScheduled,
		events.EventUnlockCancelled,
		events.EventUnlockTriggered,
		events.EventSelectionUpdated,
	}
	for _, et := range journalTypes {
		d.bus.Subscribe(et, func(e events.Event) {
			if err := d.journal.Log(string(e.Type), e.Data); err != nil {
				d.log(LogLevelError, "journal write: %v", err)
			}
		})
	}

	if !d.config.Notifications.Enabled {
		return
	}

	d.bus.Subscribe(events.EventPendingSet, func(e events.Event) {
		if applied, ok := e.Data["applied"].(bool); ok && applied {
			return
		}
		effectiveAt, _ := e.Data["effective_at"].(string)
		d.notifyUser("Goal change queued", fmt.Sprintf("Takes effect %s.", effectiveAt))
	})
	d.bus.Subscribe(events.EventPendingApplied, func(e events.Event) {
		intentStr, _ := e.Data["intent"].(string)
		d.notifyUser("Goals updated", fmt.Sprintf("Your %s goal change is now active.", intentStr))
	})
	d.bus.Subscribe(events.EventUnlockTriggered, func(e events.Event) {
		d.notifyUser("Unlock window", "Today's unlock window has begun. Shields are down.")
	})
}

func (d *Daemon) notifyUser(title, message string) {
	if err := notify.Send(title, message); err != nil {
		d.log(LogLevelWarn, "notification failed: %v", err)
	}
}

// refreshShields is the single evaluation path shared by the watcher, the
// ticker, schedule triggers and UDS commands. Concurrent calls collapse
// into one evaluation.
func (d *Daemon) refreshShields(reason string) (gate.Decision, error) {
	v, err, _ := d.refresh.Do("refresh", func() (interface{}, error) {
		now := d.clock.Now()

		applied, applyErr := d.manager.ApplyIfReady(now)
		if applyErr != nil {
			d.log(LogLevelError, "apply pending: %v", applyErr)
		} else if applied != nil {
			d.onApplied(applied, now)
		}

		metrics, readErr := d.health.Today(now)
		if readErr != nil {
			d.log(LogLevelWarn, "read metrics: %v (treating as zero)", readErr)
		}

		decision := gate.Evaluate(d.manager.Active(), metrics, now, d.calendar)
		d.log(LogLevelDebug, "gate block=%v reasons=%v trigger=%s", decision.Block, decision.Reasons, reason)

		if err := d.shields.UpdateShields(decision.Block); err != nil {
			return decision, err
		}

		d.publish(events.EventShieldsUpdated, map[string]interface{}{
			"block":   decision.Block,
			"reasons": decision.Reasons,
			"trigger": reason,
		})
		return decision, nil
	})

	decision, _ := v.(gate.Decision)
	return decision, err
}

// onApplied runs the side effects of a committed pending change: realign
// the unlock window, journal, update the decision trail, publish.
func (d *Daemon) onApplied(change *model.PendingChange, now time.Time) {
	d.log(LogLevelInfo, "pending change applied id=%s intent=%s", change.ID, change.Intent)

	if err := d.syncUnlockSchedule(); err != nil {
		d.log(LogLevelError, "sync unlock schedule: %v", err)
	}

	if d.history != nil {
		if err := d.history.MarkApplied(change.ID, now.Format(time.RFC3339)); err != nil {
			d.log(LogLevelWarn, "history mark applied: %v", err)
		}
	}
	d.publish(events.EventPendingApplied, map[string]interface{}{
		"change_id":    change.ID,
		"intent":       string(change.Intent),
		"effective_at": change.EffectiveAt,
	})
}

// syncUnlockSchedule aligns the registered daily window with the active
// configuration's unlock goal.
func (d *Daemon) syncUnlockSchedule() error {
	active := d.manager.Active()
	st := d.registry.State()

	if !active.Unlock.Enabled {
		if st.Scheduled {
			if err := d.registry.CancelDailyUnlock(); err != nil {
				return err
			}
			d.publish(events.EventUnlockCancelled, map[string]interface{}{
				"event_id": st.Identifier,
			})
		}
		return nil
	}
	if st.Scheduled && st.MinuteOfDay == active.Unlock.MinuteOfDay {
		return nil
	}
	if err := d.registry.ScheduleDailyUnlock(active.Unlock.MinuteOfDay); err != nil {
		return err
	}
	scheduled := d.registry.State()
	d.publish(events.EventUnlockScheduled, map[string]interface{}{
		"event_id":      scheduled.Identifier,
		"minute_of_day": scheduled.MinuteOfDay,
	})
	return nil
}

// processTrigger handles a fired schedule identifier: wake-up semantics
// first (commit a due pending change), then the unlock dispatch.
func (d *Daemon) processTrigger(identifier string) (bool, error) {
	now := d.clock.Now()

	applied, err := d.manager.ApplyIfReady(now)
	if err != nil {
		d.log(LogLevelError, "apply pending on trigger: %v", err)
	} else if applied != nil {
		d.onApplied(applied, now)
	}

	matched := unlock.Matches(identifier)
	if err := d.registry.HandleTrigger(identifier); err != nil {
		return matched, err
	}
	if matched {
		d.log(LogLevelInfo, "unlock trigger identifier=%s", identifier)
		d.publish(events.EventUnlockTriggered, map[string]interface{}{
			"event_id": identifier,
		})
	} else {
		d.log(LogLevelDebug, "ignoring trigger identifier=%s", identifier)
	}
	return matched, nil
}

// fsnotifyLoop reacts to metrics drop-file changes, debounced so a burst
// of writes costs one evaluation.
func (d *Daemon) fsnotifyLoop() {
	defer d.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-d.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				d.log(LogLevelDebug, "fsnotify event=%s file=%s", event.Op, event.Name)
				if timer == nil {
					timer = time.NewTimer(d.debounce)
					timerC = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(d.debounce)
				}
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if _, err := d.refreshShields("metrics"); err != nil {
				d.log(LogLevelWarn, "refresh on metrics change: %v", err)
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log(LogLevelError, "fsnotify error=%v", err)
		}
	}
}

// tickerLoop drives the periodic opportunistic check.
func (d *Daemon) tickerLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.ticker.C:
			d.log(LogLevelDebug, "periodic check triggered")
			if _, err := d.refreshShields("periodic"); err != nil {
				d.log(LogLevelWarn, "periodic refresh: %v", err)
			}
		}
	}
}

// triggerLoop routes fired schedule identifiers from the timer scheduler.
func (d *Daemon) triggerLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case identifier, ok := <-d.scheduler.Triggers():
			if !ok {
				return
			}
			if _, err := d.processTrigger(identifier); err != nil {
				d.log(LogLevelError, "trigger %s: %v", identifier, err)
			}
		}
	}
}

// waitSignals blocks until a shutdown signal is received.
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	d.log(LogLevelInfo, "received signal=%s, initiating graceful shutdown", sig)

	// Second signal → force exit
	go func() {
		<-sigCh
		d.log(LogLevelWarn, "received second signal, forcing exit")
		d.forceExit.Store(true)
		os.Exit(1)
	}()

	d.Shutdown()
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.log(LogLevelInfo, "shutdown started")

		// 1. Cancel context (stops accepting new work)
		d.cancel()

		// 2. Stop producers
		d.ticker.Stop()
		if d.watcher != nil {
			d.watcher.Close()
		}
		if d.scheduler != nil {
			d.scheduler.Close()
		}
		if d.server != nil {
			d.server.Stop()
		}

		// 3. Drain in-flight with timeout
		timeout := d.config.Daemon.ShutdownTimeoutSec
		if timeout <= 0 {
			timeout = 30
		}

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			d.log(LogLevelInfo, "all goroutines drained")
		case <-time.After(time.Duration(timeout) * time.Second):
			d.log(LogLevelWarn, "shutdown timeout after %ds, some operations may be incomplete", timeout)
		}

		// 4. Cleanup
		d.cleanup()
		d.log(LogLevelInfo, "daemon stopped")
	})
}

// cleanup releases resources.
func (d *Daemon) cleanup() {
	socketPath := filepath.Join(d.steplockDir, uds.DefaultSocketName)
	os.Remove(socketPath)
	if d.bus != nil {
		d.bus.Close()
	}
	if d.journal != nil {
		d.journal.Close()
	}
	if d.history != nil {
		d.history.Close()
	}
	d.fileLock.Unlock()
	if d.logFile != nil {
		d.logFile.Close()
	}
}

func (d *Daemon) publish(eventType events.EventType, data map[string]interface{}) {
	if d.bus != nil {
		d.bus.Publish(eventType, data)
	}
}

func (d *Daemon) log(level LogLevel, format string, args ...any) {
	if level < d.logLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	d.logger.Printf("%s %s daemon: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
