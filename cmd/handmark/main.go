package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/ayusman/handmark/internal/app"
	"github.com/ayusman/handmark/internal/capture"
	"github.com/ayusman/handmark/internal/config"
	"github.com/ayusman/handmark/internal/dispatch"
	"github.com/ayusman/handmark/internal/engine"
	"github.com/ayusman/handmark/internal/log"
	"github.com/ayusman/handmark/internal/publish"
	"github.com/ayusman/handmark/internal/server"
	"github.com/ayusman/handmark/internal/store"
	"github.com/ayusman/handmark/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	model := flag.String("model", "", "Hand landmarker model path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	bypass := flag.Bool("bypass", false, "Start with the bypass mode gate enabled")
	camera := flag.Bool("camera", false, "Feed frames from the local camera")
	withTray := flag.Bool("tray", false, "Show the system tray menu")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "handmark: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Explicit flags win over the config file.
	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if *addr != "" {
		cfg.Addr = *addr
	}
	if *model != "" {
		cfg.Model.Path = *model
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if explicit["bypass"] {
		cfg.Bypass = *bypass
	}
	if explicit["camera"] {
		cfg.Camera.Enabled = *camera
	}
	if explicit["tray"] {
		cfg.Tray = *withTray
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "handmark: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel)
	log.Info("starting handmark", "addr", cfg.Addr, "model", cfg.Model.Path, "data_dir", cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Tray {
		if err := run(ctx, cfg, explicit["bypass"], nil); err != nil {
			log.Error("handmark failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// The tray owns the main thread; everything else runs beside it.
	ctx, cancel := context.WithCancel(ctx)
	t := tray.New(cfg.Bypass)
	t.OnQuit(cancel)
	t.OnDashboard(func() { openBrowser(dashboardURL(cfg.Addr)) })

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, explicit["bypass"], t)
		t.Quit()
	}()

	t.Run()
	cancel()

	if err := <-errCh; err != nil {
		log.Error("handmark failed", "error", err)
		os.Exit(1)
	}
}

// run wires the pipeline and serves until ctx is done. t may be nil.
func run(ctx context.Context, cfg *config.Config, bypassFlag bool, t *tray.Tray) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(filepath.Join(cfg.DataDir, "handmark.db"))
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	// A mode chosen at runtime survives restarts unless overridden.
	if !bypassFlag {
		if stored, err := st.Settings().Bool(store.SettingBypass, cfg.Bypass); err != nil {
			log.Warn("ignoring stored mode", "error", err)
		} else {
			cfg.Bypass = stored
		}
	}

	opts := engine.DefaultOptions()
	opts.NumHands = cfg.Engine.NumHands
	opts.MinHandDetectionConfidence = cfg.Engine.MinHandDetectionConfidence
	opts.MinHandPresenceConfidence = cfg.Engine.MinHandPresenceConfidence
	opts.MinTrackingConfidence = cfg.Engine.MinTrackingConfidence

	preview := capture.NewPreview()
	a := app.New(app.Config{
		Factory: engine.NewProcessFactory(engine.ProcessConfig{
			Python: cfg.Engine.Python,
			Script: cfg.Engine.Script,
		}),
		Engine:         &opts,
		DispatchBuffer: cfg.Engine.DispatchBuffer,
		AssetRoot:      cfg.Model.AssetRoot,
		FilesDir:       filepath.Join(cfg.DataDir, "files"),
		Preview:        preview,
	})
	defer a.Close()

	hub := server.NewHub()
	listeners := []dispatch.Listener{hub, store.NewRecorder(st)}

	if cfg.Publish.Endpoint != "" {
		pub, err := publish.New(publish.Config{
			Endpoint: cfg.Publish.Endpoint,
			Topic:    cfg.Publish.Topic,
			Format:   publish.Format(cfg.Publish.Format),
		})
		if err != nil {
			return fmt.Errorf("start publisher: %w", err)
		}
		defer pub.Close()
		listeners = append(listeners, pub)
	}

	if t != nil {
		listeners = append(listeners, t)
		t.SetBypass(cfg.Bypass)
		t.OnToggle(func(bypass bool) bool {
			mode := a.SetMode(bypass)
			if err := st.Settings().SetBool(store.SettingBypass, mode); err != nil {
				log.Warn("failed to persist mode", "error", err)
			}
			return mode
		})
	}

	a.SetListener(dispatch.Multi(listeners...))
	a.SetMode(cfg.Bypass)

	// A failed setup leaves the detector answering "fail" until restarted;
	// the host keeps serving so callers can see that.
	if err := a.Initialize(cfg.Model.Path); err != nil {
		log.Error("hand landmarker unavailable", "error", err)
	}

	if cfg.Camera.Enabled {
		cam := capture.NewCameraWithSize(cfg.Camera.DeviceID, cfg.Camera.Width, cfg.Camera.Height)
		go func() {
			if err := a.RunCamera(ctx, cam, cfg.Camera.FPS); err != nil {
				log.Error("camera feed failed", "error", err)
			}
		}()
	}

	webDir := findWebDir()
	if webDir != "" {
		log.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Backend:   a,
		Store:     st,
		Hub:       hub,
		Preview:   preview,
	})

	return srv.ListenAndServe(ctx, cfg.Addr)
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
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
		log.Warn("failed to open browser", "url", url, "error", err)
		return
	}
	go cmd.Wait()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.handmark/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
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

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".handmark", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
