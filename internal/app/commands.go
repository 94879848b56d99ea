package app

import (
	"fmt"
	"slices"
	"strings"
	"time"

	wav "github.com/ieee0824/transcript-go/audio"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/asr"
	"github.com/parleyhq/parley/internal/audio"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/doctor"
	"github.com/parleyhq/parley/internal/journal"
	"github.com/parleyhq/parley/internal/pipeline"
	"github.com/parleyhq/parley/internal/transcript"
	"github.com/parleyhq/parley/internal/version"
)

func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := audio.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "no audio devices found")
				return exitError{code: 1}
			}

			st := newStyles(out)
			for _, device := range devices {
				defaultMark := " "
				if device.Default {
					defaultMark = "*"
				}
				line := fmt.Sprintf("%s %s %q state=%s available=%t muted=%t",
					defaultMark,
					device.ID,
					device.Description,
					device.State,
					device.Available,
					device.Muted,
				)
				if !device.Usable() {
					line = st.muted.Render(line)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newConfigCommand(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Marshal(env.config())
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			out := cmd.OutOrStdout()
			if !env.loaded.Exists {
				fmt.Fprintf(out, "# %s not found; showing defaults\n", env.loaded.Path)
			} else {
				fmt.Fprintf(out, "# %s\n", env.loaded.Path)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newDoctorCommand(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check config, models, audio and endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := doctor.Run(cmd.Context(), env.loaded, doctor.DefaultProbes())
			out := cmd.OutOrStdout()
			st := newStyles(out)
			for _, check := range report.Checks {
				fmt.Fprintf(out, "%s %s: %s\n", st.mark(check.Pass), check.Name, check.Message)
			}
			if !report.OK() {
				env.logger.Warn("doctor found problems", "report", report.String())
				return exitError{code: 1}
			}
			return nil
		},
	}
}

func newModelsCommand(env *commandEnv) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show which recognizer bundle would be loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := env.config()
			if strings.TrimSpace(dir) != "" {
				cfg.Models.Dir = dir
			}
			set, err := resolveModels(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := newStyles(out)
			fmt.Fprintln(out, st.field("family", string(set.Family)))
			fmt.Fprintln(out, st.field("source", set.Source))
			fmt.Fprintln(out, st.field("dir", set.Dir))

			roles := make([]string, 0, len(set.Files))
			for role := range set.Files {
				roles = append(roles, role)
			}
			slices.Sort(roles)
			for _, role := range roles {
				fmt.Fprintln(out, st.field(role, set.Files[role]))
			}
			if set.Tokens != "" {
				fmt.Fprintln(out, st.field("tokens", set.Tokens))
			}
			if set.VAD != "" {
				fmt.Fprintln(out, st.field("vad", set.VAD))
			}
			if !asr.FamilyAvailable(set.Family) {
				fmt.Fprintln(out, st.fail.Render(asr.ErrFamilyUnavailable.Error()))
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "model directory to inspect (default: models.dir)")
	return cmd
}

func newTranscriptsCommand(env *commandEnv) *cobra.Command {
	var (
		room  string
		limit int
		rooms bool
	)
	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "Print journaled transcripts for a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := env.config()
			dir, err := config.JournalDir(cfg)
			if err != nil {
				return err
			}
			j, err := journal.Open(journal.Options{Dir: dir, Logger: env.logger})
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			out := cmd.OutOrStdout()
			if rooms {
				names, err := j.Rooms()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			if strings.TrimSpace(room) == "" {
				room = cfg.Chat.Room
			}
			entries, err := j.List(room, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s %s: %s\n", e.DecodedAt.Local().Format(time.DateTime), e.From, e.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room to list (default: chat.room)")
	cmd.Flags().IntVar(&limit, "limit", 20, "most recent entries to print; 0 prints all")
	cmd.Flags().BoolVar(&rooms, "rooms", false, "list journaled rooms instead of transcripts")
	return cmd
}

func newTranscribeCommand(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe a 16 kHz mono 16-bit WAV file offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := env.config()

			samples, header, err := wav.ReadWAVFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			rec := pipeline.Recording{
				Samples:    make([]float32, len(samples)),
				SampleRate: int(header.SampleRate),
			}
			for i, v := range samples {
				rec.Samples[i] = float32(v)
			}

			set, err := resolveModels(cfg)
			if err != nil {
				return err
			}
			detector, closeScorer, err := buildDetector(cfg, set.VAD)
			if err != nil {
				return err
			}
			defer func() { _ = closeScorer() }()

			engine, err := asr.Load(cmd.Context(), set, asr.LoadOptions{
				SampleRate: cfg.Pipeline.SampleRate,
				NumThreads: cfg.Models.NumThreads,
				Logger:     env.logger,
			})
			if err != nil {
				return err
			}
			recognizer := asr.NewRecognizer(engine)
			defer func() { _ = recognizer.Close() }()

			transcripts, err := pipeline.TranscribeRecording(rec, cfg.Pipeline.SampleRate, detector, recognizer,
				transcript.Options{CapitalizeSentences: cfg.Transcript.CapitalizeSentences})
			out := cmd.OutOrStdout()
			for _, tr := range transcripts {
				fmt.Fprintf(out, "[%s] %s\n", tr.Start.Truncate(time.Millisecond), tr.Text)
			}
			if err != nil {
				return err
			}
			env.logger.Info("file transcribed",
				"path", args[0],
				"family", string(set.Family),
				"segments", len(transcripts),
			)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipSetup": "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
