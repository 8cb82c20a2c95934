// Command gaitdecode decodes a recorded telemetry log into a CSV of physical
// units.
//
// Usage:
//
//	gaitdecode [flags] <input.csv[.gz|.zst]>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/gaitlog/internal/capture"
	"github.com/banshee-data/gaitlog/internal/config"
	"github.com/banshee-data/gaitlog/internal/db"
	"github.com/banshee-data/gaitlog/internal/fsutil"
	"github.com/banshee-data/gaitlog/internal/telemetry"
	"github.com/banshee-data/gaitlog/internal/timeutil"
	"github.com/banshee-data/gaitlog/internal/version"
)

var (
	configPath  = flag.String("config", "", "JSON capture config file")
	output      = flag.String("o", "", "Output CSV path (default <input stem>_decoded.csv)")
	polePairs   = flag.Int("pole-pairs", 0, "Motor pole pairs for mechanical RPM (0 disables)")
	layout      = flag.String("layout", telemetry.LayoutAuto, "Row layout: auto, strict or legacy")
	banners     = flag.String("banners", "", "Comma-separated extra banner prefixes to ignore")
	dbPath      = flag.String("db", "", "Also store decoded rows in this SQLite database")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <input>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("gaitdecode %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := loadConfig(flag.CommandLine)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.GetInput("") == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := decode(ctx, cfg, fsutil.OSFileSystem{}, timeutil.RealClock{}); err != nil {
		log.Fatalf("gaitdecode: %v", err)
	}
}

// loadConfig reads the optional config file, applies explicit flags and
// takes the input path from the first positional argument.
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
		case "o":
			cfg.Output = output
		case "pole-pairs":
			cfg.PolePairs = polePairs
		case "layout":
			cfg.Layout = layout
		case "banners":
			var list []string
			for _, b := range strings.Split(*banners, ",") {
				if b = strings.TrimSpace(b); b != "" {
					list = append(list, b)
				}
			}
			cfg.Banners = list
		case "db":
			cfg.DBPath = dbPath
		}
	})
	if arg := flags.Arg(0); arg != "" {
		cfg.Input = &arg
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(ctx context.Context, cfg *config.CaptureConfig, fsys fsutil.FileSystem, clock timeutil.Clock) (err error) {
	input := cfg.GetInput("")
	dec, err := telemetry.NewDecoder(cfg.DecoderOptions())
	if err != nil {
		return err
	}

	src, err := capture.OpenFile(fsys, input)
	if err != nil {
		return err
	}

	out := cfg.GetOutput()
	if out == "" {
		out = fsutil.DecodedPath(input)
	}
	outputs := &capture.Outputs{
		FS:        fsys,
		CSVPath:   out,
		Source:    input,
		PolePairs: dec.PolePairs(),
		Clock:     clock,
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

	runner := &capture.Runner{Source: src, Decoder: dec, Outputs: outputs, Clock: clock}
	sum, err := runner.Run(ctx)
	if ferr := outputs.Finish(sum); ferr != nil {
		err = errors.Join(err, ferr)
	}
	if err != nil {
		return err
	}

	if !sum.HasSink {
		log.Printf("%s: no header or recognisable data row found; nothing written (%s)", input, sum.Stats)
		return nil
	}
	log.Printf("decoded %s -> %s (%s layout): %s", input, out, sum.Layout.Variant, sum.Stats)
	return nil
}
