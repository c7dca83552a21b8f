// Command vinyasa generates therapeutic yoga sequences and runs live guided
// sessions against them.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-go/vinyasa/internal/dotenv"
	"github.com/vango-go/vinyasa/pkg/config"
)

// app is the state shared by every subcommand once the root pre-run has loaded it.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "vinyasa",
		Short:         "Therapeutic yoga sequences with a live, voice-guided coach",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `vinyasa builds a yoga sequence around your injuries and goals, renders
reference media for each pose, and runs a live session where a coach watches
your camera, talks you through each pose and moves the screen along with you.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := dotenv.LoadDefault(); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				cfg.LogLevel = slog.LevelDebug
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
			return nil
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newGenerateCmd(a),
		newPoseCmd(a),
		newLiveCmd(a),
		newLoginCmd(a),
	)
	return root
}

func runMain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr, logger: slog.Default()}
	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "vinyasa: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
