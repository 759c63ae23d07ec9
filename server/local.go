package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pokerarena/server/bots"
	"pokerarena/server/match"
	"pokerarena/server/rating"
	"pokerarena/server/sandbox"
)

var (
	playRounds  int
	playTimeout time.Duration
	playSeed    int64
	playStack   int

	buildLanguage string
)

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(buildCmd)

	playCmd.Flags().IntVar(&playRounds, "rounds", 0, "rounds to play (0 uses MATCH_ROUNDS)")
	playCmd.Flags().DurationVar(&playTimeout, "timeout", 0, "per-action timeout (0 uses MATCH_TIMEOUT_MS)")
	playCmd.Flags().Int64Var(&playSeed, "seed", 0, "deck seed (0 seeds from the clock)")
	playCmd.Flags().IntVar(&playStack, "stack", 0, "starting stack (0 uses START_STACK)")

	buildCmd.Flags().StringVar(&buildLanguage, "language", "", "language to build as (defaults to the manifest's)")
}

var playCmd = &cobra.Command{
	Use:   "play <defender-dir> <challenger-dir>",
	Short: "Play two unpacked bot directories against each other locally",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scratch, err := os.MkdirTemp(cfg.ScratchDir, "play-")
		if err != nil {
			return err
		}

		a := &bots.Acquirer{
			Limits: sandbox.Limits{CPUSeconds: cfg.CPUSeconds, MemoryMB: cfg.MemoryMB},
			Log:    logger,
		}
		var procs [2]match.Bot
		for _, seat := range []match.Seat{match.Defender, match.Challenger} {
			p, err := a.Launch(ctx, seat, args[seat], filepath.Join(scratch, seat.String()+".log"))
			if err != nil {
				if procs[match.Defender] != nil {
					procs[match.Defender].Kill()
				}
				return err
			}
			procs[seat] = p
		}

		eventsPath := filepath.Join(scratch, bots.LogName)
		events, err := os.Create(eventsPath)
		if err != nil {
			procs[0].Kill()
			procs[1].Kill()
			return err
		}
		defer events.Close()

		mc := match.Config{Rounds: cfg.Rounds, Timeout: cfg.ActionTimeout, StartStack: cfg.StartStack}
		if playRounds > 0 {
			mc.Rounds = playRounds
		}
		if playTimeout > 0 {
			mc.Timeout = playTimeout
		}
		if playStack > 0 {
			mc.StartStack = playStack
		}
		if playSeed != 0 {
			mc.Rand = rand.New(rand.NewSource(playSeed))
		}

		m := match.New(uuid.NewString(), procs, events, mc, logger)
		out, err := m.Play(ctx)

		w := cmd.OutOrStdout()
		var me *match.Error
		if err != nil {
			me = match.AsError(err)
			fmt.Fprintf(w, "error:    %s\n", me)
		} else {
			fmt.Fprintf(w, "outcome:  %s %+d\n", out.Kind, out.Delta)
		}
		s := rating.Score(out, me, mc.StartStack)
		fmt.Fprintf(w, "score:    defender %d, challenger %d\n", s.Defender, s.Challenger)
		fmt.Fprintf(w, "rounds:   %d\n", m.RoundsPlayed())
		for i, st := range m.Stats() {
			fmt.Fprintf(w, "%-10s hands=%d vpip=%d pfr=%d af=%.2f bb/100=%.1f\n",
				match.Seat(i), st.Hands, st.VPIP, st.PFR, st.AF(), st.BBPer100())
		}
		fmt.Fprintf(w, "events:   %s\n", eventsPath)

		if me != nil && !me.Attributable() {
			return me
		}
		return nil
	},
}

var buildCmd = &cobra.Command{
	Use:   "build <bot-dir>",
	Short: "Run a language adapter's build steps for a bot directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		lang := buildLanguage
		if lang == "" {
			m, err := bots.ReadManifest(dir)
			if err != nil {
				return err
			}
			lang = m.Language
		}
		adapter, err := sandbox.Lookup(lang)
		if err != nil {
			return fmt.Errorf("%w (supported: %v)", err, sandbox.Names())
		}
		res, err := adapter.Build(cmd.Context(), dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "language: %s\nsuccess:  %t\nlog:      %s\n", adapter.Language(), res.Success, res.Log)
		if !res.Success {
			return errors.New("build failed")
		}
		return nil
	},
}
