package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JHils/phile-gate-whispers-sub003/internal/config"
	"github.com/JHils/phile-gate-whispers-sub003/internal/engine"
	"github.com/JHils/phile-gate-whispers-sub003/internal/mood"
	"github.com/JHils/phile-gate-whispers-sub003/internal/rng"
	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
	"github.com/JHils/phile-gate-whispers-sub003/internal/storage"
	"github.com/JHils/phile-gate-whispers-sub003/internal/typing"
	"github.com/JHils/phile-gate-whispers-sub003/pkg/jobmgr"
)

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the stored visitor record as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := json.MarshalIndent(current.eng.Snapshot(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Print score, rank, trust and mood",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := current.eng.Standing()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "visits: %d\n", s.Visits)
			fmt.Fprintf(out, "score:  %d (%s)\n", s.Score, s.Rank)
			fmt.Fprintf(out, "trust:  %d (%s)\n", s.TrustScore, s.Tier)
			fmt.Fprintf(out, "mood:   %s, %s\n", s.Mood, s.Trend)
			if s.Collapsed {
				fmt.Fprintf(out, "collapsed as %s\n", s.CollapseRank)
			}
			return nil
		},
	}
}

func visitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "visit",
		Short: "Record a page load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printDeliveries(cmd.OutOrStdout(), current.eng.Visit())
			return nil
		},
	}
}

func sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>",
		Short: "Send a visitor message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds := current.eng.Message(strings.Join(args, " "))
			printDeliveries(cmd.OutOrStdout(), ds)
			fmt.Fprintf(cmd.OutOrStdout(), "mood: %s\n", current.eng.CurrentMood())
			return nil
		},
	}
}

func flagCmd() *cobra.Command {
	var event bool
	c := &cobra.Command{
		Use:   "flag <name>",
		Short: "Latch a console flag, or a narrative event with --event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if event {
				current.eng.TrackEvent(args[0])
				return nil
			}
			if !current.eng.LatchConsoleFlag(args[0]) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already set\n", args[0])
			}
			return nil
		},
	}
	c.Flags().BoolVar(&event, "event", false, "latch a narrative event instead")
	return c
}

func confessCmd() *cobra.Command {
	var emotion, sentiment string
	c := &cobra.Command{
		Use:   "confess <text>",
		Short: "Record a confession",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := current.eng.Confess(state.Confession{
				Text:             strings.Join(args, " "),
				EmotionalContext: mood.Category(emotion),
				Sentiment:        mood.Category(sentiment),
			})
			if !ok {
				return fmt.Errorf("confession is empty")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mood: %s\n", current.eng.CurrentMood())
			return nil
		},
	}
	c.Flags().StringVar(&emotion, "emotion", "", "emotional context")
	c.Flags().StringVar(&sentiment, "sentiment", "", "sentiment, used when no emotion is given")
	return c
}

func collapseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collapse [message]",
		Short: "End the narrative",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !current.eng.Collapse(strings.Join(args, " ")) {
				fmt.Fprintln(cmd.OutOrStdout(), "already collapsed")
			}
			return nil
		},
	}
}

func forgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Wipe the record, keeping visit count and first visit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return current.eng.Forget()
		},
	}
}

type simClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *simClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func simulateCmd() *cobra.Command {
	var (
		steps      int
		step       time.Duration
		visitEvery int
		seed       int64
	)
	c := &cobra.Command{
		Use:   "simulate",
		Short: "Run a session on simulated time against a throwaway record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if step <= 0 {
				return fmt.Errorf("step must be positive")
			}
			start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
			clock := &simClock{t: start}
			store := storage.New(storage.NewMemory(), current.log)
			store.SetClock(clock.Now)
			tn := current.tuning
			eng, err := engine.New(store, engine.Options{
				Tuning: &tn,
				Source: rng.New(seed),
				Clock:  clock.Now,
				Logger: current.log,
			})
			if err != nil {
				return err
			}
			defer eng.Close()

			out := cmd.OutOrStdout()
			for i := 0; i < steps; i++ {
				var ds []engine.Delivery
				if visitEvery > 0 && i%visitEvery == 0 {
					ds = append(ds, eng.Visit()...)
				}
				ds = append(ds, eng.Tick()...)
				for _, d := range ds {
					fmt.Fprintf(out, "%s %s: %s\n", since(start, d.FiredAt), d.TriggerID, d.Text)
				}
				clock.advance(step)
			}
			s := eng.Standing()
			fmt.Fprintf(out, "final: score %d (%s), trust %s, mood %s\n", s.Score, s.Rank, s.Tier, s.Mood)
			return nil
		},
	}
	c.Flags().IntVar(&steps, "steps", 120, "number of ticks")
	c.Flags().DurationVar(&step, "step", time.Minute, "simulated time between ticks")
	c.Flags().IntVar(&visitEvery, "visit-every", 60, "record a visit every N ticks, 0 for never")
	c.Flags().Int64Var(&seed, "seed", 1, "random seed")
	return c
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trigger loop and type out what the character says",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoop(ctx, cmd)
		},
	}
}

func runLoop(ctx context.Context, cmd *cobra.Command) error {
	a := current
	deliveries := make(chan engine.Delivery, 16)
	a.eng.SetOnDelivery(func(d engine.Delivery) {
		select {
		case deliveries <- d:
		default:
			a.log.Warn().Str("trigger", d.TriggerID).Msg("output busy, delivery dropped")
		}
	})

	jobs := jobmgr.NewManager(a.log)
	defer jobs.StopAll()
	if a.cfg.TuningPath != "" {
		err := jobs.Start(ctx, "tuning", func(ctx context.Context) error {
			return config.WatchTuning(ctx, a.cfg.TuningPath, a.log, func(t config.Tuning) {
				if err := a.eng.ApplyTuning(t); err != nil {
					a.log.Warn().Err(err).Msg("tuning rejected")
				}
			})
		})
		if err != nil {
			return err
		}
	}

	printDeliveries(cmd.OutOrStdout(), a.eng.Visit())
	if err := a.eng.Start(ctx); err != nil {
		return err
	}
	a.log.Info().Dur("tick", a.cfg.Tick).Msg("running, interrupt to stop")

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-deliveries:
			err := typing.Play(ctx, d.Plan, func(chunk string) { fmt.Fprint(out, chunk) })
			fmt.Fprintln(out)
			if err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}
