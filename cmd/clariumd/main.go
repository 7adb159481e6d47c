package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/euanmacinnes/clarium-sub003/internal/auth"
	"github.com/euanmacinnes/clarium-sub003/internal/config"
	"github.com/euanmacinnes/clarium-sub003/internal/engine"
	"github.com/euanmacinnes/clarium-sub003/internal/engine/enginetest"
	"github.com/euanmacinnes/clarium-sub003/internal/server"
	"github.com/euanmacinnes/clarium-sub003/pkg/logger"
)

// Build-time variables
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var (
	cfgFile string
	cfg     *config.Config
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:           "clariumd",
	Short:         "PostgreSQL wire-protocol front end for the Clarium engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.SetLevel(cfg.Log.Level)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("clariumd %s (commit %s, built %s, %s %s/%s)\n",
			version, commit, buildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the wire-protocol server",
	Long: `Start the wire-protocol server. Clients connect with any libpq-based
tool (psql, drivers) on the configured listen address.

Without an engine endpoint this binary serves the built-in scripted
engine, which answers canned statements; it exists for protocol-level
smoke testing and development.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	srv := server.New(&server.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		Trust:           cfg.Server.Trust,
		DefaultDatabase: cfg.Server.DefaultDatabase,
		DefaultSchema:   cfg.Server.DefaultSchema,
		WireTrace:       cfg.Server.WireTrace,
		MaxConnections:  cfg.Server.MaxConnections,
	}, devEngine(), auth.NewFileProvider(cfg.Auth.RootDir))

	if err := srv.Start(); err != nil {
		return err
	}
	<-cmd.Context().Done()
	return srv.Stop()
}

// devEngine returns the scripted engine used when no real engine endpoint
// is wired in. It answers the probes clients issue on connect.
func devEngine() engine.Engine {
	eng := enginetest.New()
	eng.Script("SELECT 1", enginetest.Script{
		Result: &engine.Result{
			Columns: []engine.Column{{Name: "?column?", Kind: engine.KindInt32}},
			Rows:    [][]any{{int32(1)}},
		},
	})
	eng.Script("SELECT version()", enginetest.Script{
		Result: &engine.Result{
			Columns: []engine.Column{{Name: "version", Kind: engine.KindString}},
			Rows:    [][]any{{fmt.Sprintf("Clarium %s", version)}},
		},
	})
	return eng
}

var listenAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.clarium/config.yaml)")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address override")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
