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
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/ayusman/playsight/internal/app"
	"github.com/ayusman/playsight/internal/config"
	"github.com/ayusman/playsight/internal/server"
	"github.com/ayusman/playsight/internal/store"
	"github.com/ayusman/playsight/internal/tray"
)

func main() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get home directory: %v\n", err)
		os.Exit(1)
	}
	dataDir := filepath.Join(home, ".playsight")

	addr := flag.String("addr", ":8080", "HTTP listen address")
	cameraID := flag.Int("camera", 0, "camera device id")
	tuningPath := flag.String("tuning", "", "JSON tuning file (defaults built in)")
	dbPath := flag.String("db", filepath.Join(dataDir, "playsight.db"), "analytics database path (empty disables)")
	soundDir := flag.String("sounds", filepath.Join(dataDir, "sounds"), "sound pack directory (empty disables)")
	soundPack := flag.String("sound-pack", "", "sound pack name (first discovered by default)")
	webDir := flag.String("web", "", "static web directory (searched for by default)")
	debug := flag.Bool("debug", false, "debug logging and recognizer debug output")
	noTray := flag.Bool("no-tray", false, "run without the system tray")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := run(log, options{
		addr:      *addr,
		cameraID:  *cameraID,
		tuning:    *tuningPath,
		dbPath:    *dbPath,
		soundDir:  *soundDir,
		soundPack: *soundPack,
		webDir:    *webDir,
		dataDir:   dataDir,
		debug:     *debug,
		tray:      !*noTray,
	}); err != nil {
		log.Fatalw("playsight failed", "error", err)
	}
}

type options struct {
	addr      string
	cameraID  int
	tuning    string
	dbPath    string
	soundDir  string
	soundPack string
	webDir    string
	dataDir   string
	debug     bool
	tray      bool
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Encoding = "console"
		cfg.Development = true
	}
	return cfg.Build()
}

func run(log *zap.SugaredLogger, opts options) error {
	tuning, err := config.Load(opts.tuning)
	if err != nil {
		return err
	}

	var st *store.Store
	if opts.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		st, err = store.New(opts.dbPath, log)
		if err != nil {
			return fmt.Errorf("initialize store: %w", err)
		}
		defer st.Close()
	}

	a := app.New(app.Config{
		Store:     st,
		CameraID:  opts.cameraID,
		SoundDir:  opts.soundDir,
		SoundPack: opts.soundPack,
		Tuning:    &tuning,
		Logger:    log,
	})
	a.SetDebugMode(opts.debug)
	defer func() {
		if err := a.StopSession(); err != nil {
			log.Warnw("session teardown failed", "error", err)
		}
	}()

	webDir := opts.webDir
	if webDir == "" {
		webDir = findWebDir(opts.dataDir)
	}
	if webDir != "" {
		log.Infow("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		App:       a,
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(opts.addr)
	}()

	if opts.tray {
		runTray(ctx, stop, log, a, opts.addr)
	} else {
		<-ctx.Done()
	}

	select {
	case err := <-errc:
		return err
	default:
		log.Info("shutting down")
		return nil
	}
}

// runTray blocks in the tray event loop until the user quits or ctx ends.
func runTray(ctx context.Context, stop context.CancelFunc, log *zap.SugaredLogger, a *app.App, addr string) {
	t := tray.New()
	t.OnToggle(func(start bool) error {
		if start {
			return a.StartSession(ctx)
		}
		return a.StopSession()
	})
	t.OnSettings(func() {
		if err := openBrowser("http://localhost" + addr); err != nil {
			log.Warnw("failed to open browser", "error", err)
		}
	})
	t.OnQuit(stop)

	go t.Follow(ctx, clock.New(), 500*time.Millisecond, a.LastEvent)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	t.Run()
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
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

	homeWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
