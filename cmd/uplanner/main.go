package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"uplanner/internal/config"
	"uplanner/internal/fetch"
	appLog "uplanner/internal/log"
	"uplanner/internal/model"
	"uplanner/internal/planner"
	"uplanner/internal/refresh"
	"uplanner/internal/web"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "uplanner",
	Short: "Planner core daemon: effective-dated templates and remote calendar sync",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			appLog.SetLevel(appLog.LevelDebug)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon: periodic calendar refresh plus the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDaemon(cmd.Context())
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one refresh cycle for every configured calendar and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		env.scheduler.RunOnce(cmd.Context())
		if err := env.saveState(); err != nil {
			return err
		}
		state := env.svc.CalendarState()
		fmt.Printf("status: %s\n", state.Status)
		if state.LastError != "" {
			fmt.Printf("last error: %s\n", state.LastError)
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <date>",
	Short: "Print the template revision in effect on a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}

		date := model.ISODate(args[0])
		if !date.Valid() {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
		}

		key := env.svc.ResolveTemplateDate(date)
		if key == model.NoDate {
			fmt.Printf("%s: no template in effect\n", date)
			return nil
		}

		fmt.Printf("%s: template effective from %s\n", date, key)
		for id, meta := range env.svc.EffectiveTemplate(date) {
			fmt.Printf("  [%d] %s (%s, %s)\n", meta.Order, meta.Label, meta.Kind, id)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./uplanner.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(runCmd, fetchCmd, resolveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// environment wires the service, scheduler, and state persistence for
// one process.
type environment struct {
	cfg       *config.Config
	svc       *planner.Service
	scheduler *refresh.Scheduler
	loc       *time.Location
}

func setup() (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	loc := time.Local
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
	}

	svc := planner.NewService(cfg.RetentionDays, fetch.NewClient(15*time.Second))
	svc.SetNoticeFunc(func(msg string) {
		appLog.Info("notice", "msg", msg)
	})

	if err := loadState(cfg.StatePath, svc); err != nil {
		return nil, err
	}
	seedCalendars(svc, cfg, loc)

	targets := func() []refresh.Target {
		today := model.FormatDate(time.Now().In(loc))
		key := svc.ResolveTemplateDate(today)
		if key == model.NoDate {
			return nil
		}
		var out []refresh.Target
		for id, meta := range svc.EffectiveTemplate(today) {
			if meta.Kind == model.KindCalendar {
				out = append(out, refresh.Target{TemplateKey: key, CalendarID: id})
			}
		}
		return out
	}

	return &environment{
		cfg:       cfg,
		svc:       svc,
		scheduler: refresh.NewScheduler(svc, cfg.GraceDays, cfg.LookaheadDays, loc, targets),
		loc:       loc,
	}, nil
}

func runDaemon(parent context.Context) error {
	env, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	// Debounced snapshot persistence, the host side of the core's
	// change notifications.
	saver := newDebouncedSaver(env, 2*time.Second)
	env.svc.OnChange(saver.trigger)
	defer saver.flush()

	if err := env.scheduler.Start(ctx, env.cfg.RefreshCron); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer env.scheduler.Stop()

	// Refresh immediately on startup rather than waiting a full tick.
	go env.scheduler.RunOnce(ctx)

	if env.cfg.Listen != "" {
		srv := web.NewServer(env.cfg, env.svc)
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	<-ctx.Done()
	return nil
}

// seedCalendars makes sure every configured calendar exists as a row in
// today's effective template, matching existing rows by URL first, then
// by label.
func seedCalendars(svc *planner.Service, cfg *config.Config, loc *time.Location) {
	today := model.FormatDate(time.Now().In(loc))

	for _, c := range cfg.Calendars {
		if c.URL == "" {
			continue
		}
		if findCalendarRow(svc.EffectiveTemplate(today), c) != "" {
			continue
		}
		id := svc.NewItem(today, model.KindCalendar, c.Label, c.Color, c.URL)
		appLog.Info("seeded calendar row", "id", id, "label", c.Label)
	}
}

func findCalendarRow(tmpl model.Template, c config.CalendarConfig) model.ItemID {
	for id, meta := range tmpl {
		if meta.Kind != model.KindCalendar {
			continue
		}
		if meta.URL == c.URL {
			return id
		}
	}
	for id, meta := range tmpl {
		if meta.Kind == model.KindCalendar && meta.Label == c.Label {
			return id
		}
	}
	return ""
}

func loadState(path string, svc *planner.Service) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read state: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	svc.Restore(snap)
	return nil
}

func (e *environment) saveState() error {
	snap := e.svc.Snapshot()
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(e.cfg.StatePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".uplanner-state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, e.cfg.StatePath)
}

// debouncedSaver coalesces bursts of change notifications into one
// snapshot write.
type debouncedSaver struct {
	env   *environment
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncedSaver(env *environment, delay time.Duration) *debouncedSaver {
	return &debouncedSaver{env: env, delay: delay}
}

func (d *debouncedSaver) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.save)
}

func (d *debouncedSaver) save() {
	if err := d.env.saveState(); err != nil {
		appLog.Error("snapshot save failed", err, "path", d.env.cfg.StatePath)
	}
}

// flush writes any pending snapshot immediately.
func (d *debouncedSaver) flush() {
	d.mu.Lock()
	pending := d.timer != nil && d.timer.Stop()
	d.timer = nil
	d.mu.Unlock()
	if pending {
		d.save()
	}
}
