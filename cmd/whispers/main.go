// Command whispers is a developer console for the behavioral state engine.
// It reads the same environment as an embedding host and operates on the
// configured storage backend.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/JHils/phile-gate-whispers-sub003/internal/config"
	"github.com/JHils/phile-gate-whispers-sub003/internal/eco"
	"github.com/JHils/phile-gate-whispers-sub003/internal/engine"
	"github.com/JHils/phile-gate-whispers-sub003/internal/logging"
	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
	"github.com/JHils/phile-gate-whispers-sub003/internal/storage"
)

var (
	envFile     string
	storageKind string
	storagePath string
	verbose     bool
)

// app holds everything a command needs. It is built in PersistentPreRunE
// and torn down in PersistentPostRunE.
type app struct {
	cfg    *config.Config
	tuning config.Tuning
	log    zerolog.Logger
	store  *storage.Storage
	eng    *engine.Engine

	logCloser io.Closer
}

var current *app

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "whispers",
		Short:         "Inspect and drive the whispers state engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			current = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if current == nil {
				return nil
			}
			err := current.close()
			current = nil
			return err
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to read before the environment")
	root.PersistentFlags().StringVar(&storageKind, "storage", "", "storage backend: memory, file, sqlite or redis")
	root.PersistentFlags().StringVar(&storagePath, "path", "", "storage file for the file and sqlite backends")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		stateCmd(),
		scoreCmd(),
		visitCmd(),
		sayCmd(),
		flagCmd(),
		confessCmd(),
		collapseCmd(),
		forgetCmd(),
		simulateCmd(),
		runCmd(),
	)
	return root
}

func setup(stderr io.Writer) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if storageKind != "" {
		cfg.Storage = storageKind
	}
	if storagePath != "" {
		cfg.StoragePath = storagePath
	}
	lo := cfg.LoggingOptions()
	lo.Console = stderr
	if verbose {
		lo.Level = "debug"
	}
	log, closer, err := logging.New(lo)
	if err != nil {
		return nil, err
	}

	tn, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		closer.Close()
		return nil, err
	}

	backend, err := storage.Open(cfg.StorageOptions(), log)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store := storage.New(backend, log)

	var fetcher eco.Fetcher = eco.Disabled{}
	if cfg.WeatherEnabled {
		wc := cfg.WeatherConfig()
		wc.Logger = log
		fetcher = eco.NewOpenMeteo(wc)
	}

	eng, err := engine.New(store, engine.Options{
		Tuning:    &tn,
		Source:    rng.New(cfg.Seed),
		Fetcher:   fetcher,
		Logger:    log,
		TickEvery: cfg.Tick,
	})
	if err != nil {
		store.Close()
		closer.Close()
		return nil, err
	}
	return &app{cfg: cfg, tuning: tn, log: log, store: store, eng: eng, logCloser: closer}, nil
}

func (a *app) close() error {
	a.eng.Close()
	err := a.store.Close()
	a.logCloser.Close()
	return err
}

func printDeliveries(w io.Writer, ds []engine.Delivery) {
	for _, d := range ds {
		fmt.Fprintf(w, "%s: %s\n", d.TriggerID, d.Text)
	}
}

func since(start, t time.Time) string {
	d := t.Sub(start).Round(time.Second)
	return fmt.Sprintf("+%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// run executes the root command. PersistentPostRunE is skipped when a
// command fails, so the app is closed here as well.
func run() error {
	err := newRootCmd().Execute()
	if current != nil {
		current.close()
		current = nil
	}
	return err
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
