package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fosdem/glscale/lib/api"
	"github.com/fosdem/glscale/lib/config"
	"github.com/fosdem/glscale/lib/imgsource"
	"github.com/fosdem/glscale/lib/log"
	"github.com/fosdem/glscale/lib/theatre"
)

func main() {
	in := flag.String("in", "", "scale this image once and exit")
	out := flag.String("out", "", "where to write the scaled image, with -in")
	profile := flag.String("profile", "", "profile to scale to, with -in")
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-in file -out file -profile name] <config file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Parse(flag.Arg(0))
	if err != nil {
		fmt.Printf("Config invalid: %s\n", err)
		os.Exit(1)
	}
	if err := log.Setup(cfg.LogLevel); err != nil {
		fmt.Printf("Config invalid: %s\n", err)
		os.Exit(1)
	}
	logger := slog.Default().With(slog.String("module", "main"))

	t, err := theatre.New(cfg, nil)
	if err != nil {
		logger.Error(fmt.Sprintf("could not build theatre: %s", err))
		os.Exit(1)
	}

	if *in != "" {
		err := scaleOnce(t, *in, *out, *profile)
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	theApi := api.ServeInBackground(t, cfg.Api, nil)
	t.Start()

	if cfg.Watch != nil {
		w := imgsource.NewWatcher(cfg.Watch, t, t.Alloc, nil)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error(err.Error())
				t.ShutdownRequested.Store(true)
			}
		}()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !t.ShutdownRequested.Load() {
		select {
		case <-ctx.Done():
			t.ShutdownRequested.Store(true)
		case <-ticker.C:
		}
	}

	logger.Info("shutting down")
	cancel()
	if theApi != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := theApi.Shutdown(shutdownCtx); err != nil {
			logger.Warn(fmt.Sprintf("could not stop web server: %s", err))
		}
		done()
	}
	t.Stop()
}

func scaleOnce(t *theatre.Theatre, in, out, profile string) error {
	if out == "" {
		return fmt.Errorf("-in needs -out")
	}
	if profile == "" {
		names := t.ProfileNames()
		if len(names) != 1 {
			return fmt.Errorf("-profile is required with %d profiles configured", len(names))
		}
		profile = names[0]
	}

	t.Start()
	defer t.Stop()

	w := imgsource.NewWatcher(&config.WatchCfg{
		Input:   config.CfgPath(in),
		Output:  config.CfgPath(out),
		Profile: profile,
	}, t, t.Alloc, nil)
	return w.Rescale(context.Background())
}
