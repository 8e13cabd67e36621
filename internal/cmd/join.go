package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ernestchu/christmas-tree/internal/participant"
	"github.com/ernestchu/christmas-tree/internal/peer"
	"github.com/ernestchu/christmas-tree/internal/reconciler"
	"github.com/ernestchu/christmas-tree/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagName      string
	flagDashboard bool
	flagStream    string
	flagRecord    string
)

const joinTimeout = 10 * time.Second

var joinCmd = &cobra.Command{
	Use:     "join <session>",
	Aliases: []string{"j"},
	Short:   "Join (or create) a session",
	Long: `Join a session by id, creating it if nobody is there yet. The first member
controls the tree.

Examples:
  christmas-tree join merry-fir --name Alice
  christmas-tree join merry-fir --name Bob --dashboard
  christmas-tree join merry-fir --name Carol --stream tree.ivf --record seen.ivf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(flagName)
		if name == "" {
			return fmt.Errorf("--name is required")
		}
		return joinSession(cmd.Context(), args[0], name)
	},
}

func joinSession(ctx context.Context, sessionID, name string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	opts := participant.Options{Config: cfg, Log: logger, PionLevel: zerolog.WarnLevel}
	if flagStream != "" {
		src, err := peer.OpenIVF(flagStream)
		if err != nil {
			return fmt.Errorf("open stream: %w", err)
		}
		defer src.Close()
		opts.Capture = peer.NewSceneCapture(src, logger)
	}
	if flagRecord != "" {
		opts.OnTrack = peer.RecordIVF(flagRecord, logger)
	}

	p, err := participant.New(opts)
	if err != nil {
		return err
	}

	stop := ui.RunConnectionSpinner("Connecting to server...")
	err = p.Connect(ctx)
	stop()
	if err != nil {
		return fmt.Errorf("connect to server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	if err := p.Join(sessionID, name); err != nil {
		return err
	}
	if err := waitJoined(ctx, p.Reconciler(), runErr); err != nil {
		return err
	}
	rec := p.Reconciler()
	ui.PrintSuccessf("Joined %s as %s", sessionID, name)

	if flagDashboard {
		err = ui.RunDashboard(rec)
		p.Leave()
	} else {
		fmt.Println(ui.RosterView(rec.Users(), rec.Controller(), rec.SelfID()))
		err = runShell(ctx, &shell{s: rec, leave: p.Leave, out: os.Stdout}, runErr)
	}
	cancel()
	if err == nil || errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func waitJoined(ctx context.Context, rec *reconciler.Reconciler, runErr <-chan error) error {
	stop := ui.RunWaitingSpinner("Joining session...")
	defer stop()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(joinTimeout)
	for rec.SelfID() == "" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runErr:
			return err
		case <-timeout:
			return fmt.Errorf("no answer from server after %s", joinTimeout)
		case <-ticker.C:
		}
	}
	return nil
}

// runShell reads commands from stdin and prints session notices until the
// user leaves or the connection drops.
func runShell(ctx context.Context, sh *shell, runErr <-chan error) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println(ui.MutedStyle.Render("type help for commands"))
	status := sh.s.Status()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			if err == nil {
				return nil
			}
			return err
		case msg := <-status:
			ui.PrintStatus(msg)
		case line, ok := <-lines:
			if !ok {
				return sh.leave()
			}
			if err := sh.exec(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				ui.PrintError(err.Error())
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name (required)")
	joinCmd.Flags().BoolVarP(&flagDashboard, "dashboard", "d", false, "Show the live dashboard instead of the prompt")
	joinCmd.Flags().StringVar(&flagStream, "stream", "", "IVF (VP8) file to stream while in control")
	joinCmd.Flags().StringVar(&flagRecord, "record", "", "Record the controller's stream to an IVF file")
}
