package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/tabletouch/internal/app"
	"github.com/ayusman/tabletouch/internal/classifier"
	"github.com/ayusman/tabletouch/internal/config"
	"github.com/ayusman/tabletouch/internal/contact"
	"github.com/ayusman/tabletouch/internal/logging"
	"github.com/ayusman/tabletouch/internal/plugin"
	"github.com/ayusman/tabletouch/internal/scene"
	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/server"
	"github.com/ayusman/tabletouch/internal/store"
	"github.com/ayusman/tabletouch/internal/training"
	"github.com/ayusman/tabletouch/internal/tray"
)

const usage = `TableTouch - Depth Camera Touch Surface

Usage:
  tabletouch [serve] [-resume]
  tabletouch train [-import DIR] [-name NAME] [-activate]

Settings are read from TABLETOUCH_* environment variables and .env.
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir, Env: cfg.Env})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, log, args)
	case "train":
		err = train(ctx, cfg, log, args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal(cmd + " failed")
	}
}

func openStore(cfg config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.New(cfg.DBPath)
}

func newDevice(cfg config.Config) sensor.Device {
	if cfg.Device == config.DeviceReplay {
		return sensor.NewReplayDevice(cfg.ReplayDir, cfg.Geometry(), cfg.Loop)
	}
	return scene.Demo(cfg.Geometry())
}

func serve(ctx context.Context, cfg config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	resume := fs.Bool("resume", false, "restore the last committed calibration")
	_ = fs.Parse(args)

	log.WithFields(logrus.Fields{"env": cfg.Env, "device": cfg.Device, "addr": cfg.Addr}).Info("starting tabletouch")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cls, err := classifier.New(classifier.DefaultConfig())
	if err != nil {
		return err
	}

	frames := server.NewFrameBuffer(80)
	events := server.NewEventsHandler(log)

	appCfg := app.DefaultConfig()
	appCfg.Geometry = cfg.Geometry()
	appCfg.FPS = cfg.FPS
	appCfg.RequireBodyIndex = cfg.RequireBodyIndex
	appCfg.Contact = contact.Config{Threshold: cfg.ContactThreshold}

	a, err := app.New(appCfg,
		app.WithDevice(newDevice(cfg)),
		app.WithClassifier(cls),
		app.WithStore(st),
		app.WithSink(frames),
		app.WithLogger(log),
		app.WithContactListener(events),
	)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ReloadModel(); err != nil {
		log.WithError(err).Warn("could not load active model")
	}
	if v, err := st.Settings().Get("resume_on_start"); err == nil && v == "true" {
		*resume = true
	}
	resumed := -1
	if *resume {
		controls, err := a.ResumeCalibration()
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Info("no committed calibration to resume")
		case err != nil:
			log.WithError(err).Warn("could not resume calibration")
		default:
			log.WithField("controls", len(controls)).Info("calibration resumed")
			resumed = len(controls)
		}
	}

	plugins := plugin.NewManager(cfg.PluginDir)
	if err := plugins.Discover(); err != nil {
		log.WithError(err).Warn("plugin discovery failed")
	}
	for dir, reason := range plugins.Rejected() {
		log.WithFields(logrus.Fields{"dir": dir, "reason": reason}).Warn("plugin skipped")
	}
	log.WithField("plugins", len(plugins.List())).Info("plugins discovered")
	dispatcher := plugin.NewDispatcher(plugins, plugin.NewExecutor(cfg.PluginTimeout),
		app.NewStoreBindings(st), plugin.DefaultDispatcherConfig(), log)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()
	a.AddContactListener(dispatcher)

	webDir := cfg.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.WithField("dir", webDir).Info("serving static files")
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		App:       a,
		Store:     st,
		Trainer:   training.NewService(st, cls, classifier.DefaultTrainerConfig(), log),
		Plugins:   plugins,
		Frames:    frames,
		Events:    events,
		StreamFPS: cfg.StreamFPS,
		Logger:    log,
		RateLimit: rate.Limit(20),
		RateBurst: 40,
	})

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	if !cfg.Tray {
		return runServer(ctx, srv, cfg.Addr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- runServer(ctx, srv, cfg.Addr)
	}()

	t := tray.New(tray.Callbacks{
		Toggle: func(running bool) {
			if !running {
				a.Stop()
				return
			}
			if err := a.Start(ctx); err != nil {
				log.WithError(err).Error("could not resume pipeline")
			}
		},
		Calibrate: func() (int, error) {
			controls, err := a.Commit()
			if err != nil {
				log.WithError(err).Warn("calibration not committed")
			}
			return len(controls), err
		},
		Dashboard: func() { openBrowser("http://"+cfg.Addr, log) },
		Quit:      cancel,
	})
	if resumed >= 0 {
		t.SetCalibrated(resumed)
	}
	a.AddContactListener(t)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()

	return <-errCh
}

func runServer(ctx context.Context, srv *server.Server, addr string) error {
	if err := srv.Run(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func train(ctx context.Context, cfg config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	importDir := fs.String("import", "", "directory with square/, circle/ and slider/ sample images")
	name := fs.String("name", "", "model name")
	activate := fs.Bool("activate", true, "make the trained model active")
	_ = fs.Parse(args)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cls, err := classifier.New(classifier.DefaultConfig())
	if err != nil {
		return err
	}
	svc := training.NewService(st, cls, classifier.DefaultTrainerConfig(), log)

	if *importDir != "" {
		n, err := svc.ImportDir(ctx, *importDir)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"dir": *importDir, "samples": n}).Info("samples imported")
	}

	report, err := svc.Train(ctx, *name, *activate)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"model":    report.Model.ID,
		"accuracy": report.Result.Accuracy,
		"used":     report.Used,
		"skipped":  report.Skipped,
		"took":     report.Duration,
	}).Info("model trained")
	return nil
}

func openBrowser(url string, log logrus.FieldLogger) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.WithError(err).WithField("url", url).Warn("could not open browser")
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.tabletouch/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".tabletouch", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
