package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/ernestchu/christmas-tree/internal/config"
	"github.com/ernestchu/christmas-tree/internal/logging"
	"github.com/ernestchu/christmas-tree/internal/ui"
	"github.com/ernestchu/christmas-tree/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagDebounce time.Duration
	flagLogLevel string
)

// logger is set up before any command runs.
var logger = zerolog.Nop()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "christmas-tree",
	Short: "Join a shared Christmas tree session as controller or viewer",
	Long: `christmas-tree joins a collaborative tree session. One participant at a
time controls the scene; everyone else follows their scene updates and
watches their stream over WebRTC. Control can be requested, offered,
accepted and declined at any time.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.Init(flagLogLevel, zerolog.WarnLevel)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

// LoadConfig applies the persistent flags over env and defaults.
func LoadConfig() (*config.Client, error) {
	cfg, err := config.Load(config.Options{
		Server:     flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		Debounce:   flagDebounce,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&flagServer, "server", "S", "", "Server address (host, http(s) or ws(s) URL)")
	f.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	f.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	f.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	f.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	f.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	f.DurationVar(&flagDebounce, "debounce", 0, "Trailing window for outbound scene updates (default 150ms)")
	f.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}
