// Command gaitlog records live telemetry from the exoskeleton controller's
// serial link and writes decoded rows as they arrive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/gaitlog/internal/capture"
	"github.com/banshee-data/gaitlog/internal/config"
	"github.com/banshee-data/gaitlog/internal/db"
	"github.com/banshee-data/gaitlog/internal/fsutil"
	"github.com/banshee-data/gaitlog/internal/serialmux"
	"github.com/banshee-data/gaitlog/internal/telemetry"
	"github.com/banshee-data/gaitlog/internal/timeutil"
	"github.com/banshee-data/gaitlog/internal/version"
)

var (
	configPath  = flag.String("config", "", "JSON capture config file")
	port        = flag.String("port", config.DefaultSerialPort, "Serial port to read")
	baudRate    = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	polePairs   = flag.Int("pole-pairs", 0, "Motor pole pairs for mechanical RPM (0 disables)")
	layout      = flag.String("layout", telemetry.LayoutAuto, "Row layout: auto, strict or legacy")
	banners     = flag.String("banners", "", "Comma-separated extra banner prefixes to ignore")
	output      = flag.String("output", "", "Decoded CSV path (default <output-dir>/gait_data_log_<time>_decoded.csv)")
	outputDir   = flag.String("output-dir", ".", "Directory for default output names")
	rawOutput   = flag.String("raw", "", "Also write every raw input line to this path")
	dbPath      = flag.String("db", "", "SQLite record store path (disabled when empty)")
	listen      = flag.String("listen", "", "Debug HTTP listen address (disabled when empty)")
	devFixture  = flag.String("dev", "", "Replay this recorded log instead of opening the serial port")
	devInterval = flag.Duration("dev-interval", 10*time.Millisecond, "Delay between replayed lines")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("gaitlog %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := loadConfig(flag.CommandLine)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := runEnv{
		fs:          fsutil.OSFileSystem{},
		clock:       timeutil.RealClock{},
		ports:       serialmux.NewRealSerialPortFactory(),
		dev:         *devFixture,
		devInterval: *devInterval,
	}
	if err := run(ctx, cfg, env); err != nil {
		log.Fatalf("gaitlog: %v", err)
	}
}

// loadConfig reads the optional config file and applies any flags given on
// the command line on top of it.
func loadConfig(flags *flag.FlagSet) (*config.CaptureConfig, error) {
	cfg := &config.CaptureConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadCaptureConfig(*configPath); err != nil {
			return nil, err
		}
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Input = port
		case "baud":
			cfg.BaudRate = baudRate
		case "pole-pairs":
			cfg.PolePairs = polePairs
		case "layout":
			cfg.Layout = layout
		case "banners":
			cfg.Banners = splitList(*banners)
		case "output":
			cfg.Output = output
		case "output-dir":
			cfg.OutputDir = outputDir
		case "raw":
			cfg.RawOutput = rawOutput
		case "db":
			cfg.DBPath = dbPath
		case "listen":
			cfg.Listen = listen
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type runEnv struct {
	fs    fsutil.FileSystem
	clock timeutil.Clock
	ports serialmux.SerialPortFactory
	// dev replays a recorded log instead of opening a port.
	dev         string
	devInterval time.Duration
}

// outputPath returns the configured output or a timestamped capture name.
func outputPath(cfg *config.CaptureConfig, now time.Time) string {
	if out := cfg.GetOutput(); out != "" {
		return out
	}
	return filepath.Join(cfg.GetOutputDir(), fsutil.CaptureName(now)+fsutil.DecodedSuffix)
}

func openSource(cfg *config.CaptureConfig, env runEnv) (capture.LineSource, string, error) {
	if env.dev != "" {
		src, err := fsutil.OpenInput(env.fs, env.dev)
		if err != nil {
			return nil, "", fmt.Errorf("open replay fixture: %w", err)
		}
		replay := serialmux.NewReplayPort(src, env.devInterval)
		if err := replay.SetReadTimeout(cfg.GetReadTimeout()); err != nil {
			replay.Close()
			return nil, "", err
		}
		log.Printf("replaying %s", env.dev)
		return serialmux.NewSerialMux(replay), env.dev, nil
	}

	path := cfg.GetInput(config.DefaultSerialPort)
	p, err := env.ports.Open(path, cfg.PortOptions())
	if err != nil {
		return nil, "", err
	}
	log.Printf("connected to %s", path)
	return serialmux.NewSerialMux(p), path, nil
}

func run(ctx context.Context, cfg *config.CaptureConfig, env runEnv) (err error) {
	dec, err := telemetry.NewDecoder(cfg.DecoderOptions())
	if err != nil {
		return err
	}

	src, name, err := openSource(cfg, env)
	if err != nil {
		return err
	}

	outputs := &capture.Outputs{
		FS:        env.fs,
		CSVPath:   outputPath(cfg, env.clock.Now()),
		Source:    name,
		PolePairs: dec.PolePairs(),
		Clock:     env.clock,
	}
	if p := cfg.GetDBPath(); p != "" {
		store, err := db.NewDB(p)
		if err != nil {
			src.Close()
			return fmt.Errorf("open record store: %w", err)
		}
		defer store.Close()
		outputs.Store = store
	}

	runner := &capture.Runner{
		Source:           src,
		Decoder:          dec,
		Outputs:          outputs,
		Live:             true,
		ProgressInterval: 30 * time.Second,
		Clock:            env.clock,
	}

	if p := cfg.GetRawOutput(); p != "" {
		raw, err := fsutil.CreateAll(env.fs, p)
		if err != nil {
			src.Close()
			return fmt.Errorf("create raw log: %w", err)
		}
		defer closeLogged(raw, p)
		runner.Raw = raw
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg  sync.WaitGroup
		hub *serialmux.Hub
	)
	if addr := cfg.GetListen(); addr != "" {
		mux := http.NewServeMux()
		hub = serialmux.NewHub()
		hub.AttachAdminRoutes(mux)
		capture.AttachStatsRoute(mux, dec.Stats())
		if outputs.Store != nil {
			if err := outputs.Store.AttachAdminRoutes(mux); err != nil {
				src.Close()
				return err
			}
		}
		runner.Tail = hub

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := capture.ServeDebug(runCtx, addr, mux); err != nil {
				log.Printf("debug server: %v", err)
			}
		}()
	}
	defer wg.Wait()

	log.Printf("writing decoded rows to %s", outputs.CSVPath)
	sum, err := runner.Run(runCtx)
	cancel()
	if hub != nil {
		// ends open tail streams so the debug server can shut down
		hub.Close()
	}
	if ferr := outputs.Finish(sum); ferr != nil {
		err = errors.Join(err, ferr)
	}
	log.Printf("capture finished after %s: %s", sum.Finished.Sub(sum.Started).Round(time.Millisecond), sum.Stats)
	return err
}

func closeLogged(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		log.Printf("close %s: %v", name, err)
	}
}
