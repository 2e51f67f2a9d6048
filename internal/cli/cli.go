// Package cli wires configuration, logging, the relay server and the client
// session into a cobra command tree. Both programs share it and differ only
// in their protocol variant.
//
// Usage:
//
//	pingchat start            run the server
//	pingchat [anything]       run the client
//	joinchat [anything] [name]  run the client, joining as name
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/wsrelay/internal/client"
	"github.com/Tyrowin/wsrelay/internal/config"
	"github.com/Tyrowin/wsrelay/internal/logging"
	"github.com/Tyrowin/wsrelay/internal/protocol"
	"github.com/Tyrowin/wsrelay/internal/server"
)

type options struct {
	variant protocol.Variant

	configPath   string
	logLevel     string
	logFormat    string
	url          string
	addr         string
	drainTimeout time.Duration

	stdin  *os.File
	stdout io.Writer
	stderr io.Writer

	// runServer and runClient are replaced in tests.
	runServer func(ctx context.Context, cfg *config.Config, log *slog.Logger) error
	runClient func(ctx context.Context, cfg *config.Config, args []string, o *options, log *slog.Logger) error
}

// NewRootCommand builds the command tree for variant. The root command runs
// the client; "start" runs the server.
func NewRootCommand(variant protocol.Variant) *cobra.Command {
	return newRootCommand(&options{
		variant:   variant,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		runServer: serve,
		runClient: connect,
	})
}

func newRootCommand(o *options) *cobra.Command {
	name := string(o.variant) + "chat"

	root := &cobra.Command{
		Use:   name + " [action] [username]",
		Short: "WebSocket broadcast relay client (" + string(o.variant) + " protocol)",
		Long: `Connects to the relay and prints every message it broadcasts.

Run "` + name + ` start" to run the relay server instead. Any other first
argument, or none, runs the client.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := o.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("url") {
				cfg.ServerURL = o.url
			}
			log.Info("connect to ws", "url", cfg.ServerURL)
			return o.runClient(cmd.Context(), cfg, args, o, log)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(o.stdout)
	root.SetErr(o.stderr)

	root.PersistentFlags().StringVar(&o.configPath, "config", "", "path to a YAML configuration file")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "log format: text or json")
	root.Flags().StringVar(&o.url, "url", "", "relay URL (default ws://localhost:8000/)")

	root.AddCommand(newStartCommand(o))
	return root
}

func newStartCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the relay server",
		Long:  "Runs the relay server. Any further arguments are ignored.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := o.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = o.addr
			}
			if cmd.Flags().Changed("drain-timeout") {
				cfg.DrainTimeout = o.drainTimeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log.Info("start ws", "addr", cfg.Addr)
			return o.runServer(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&o.addr, "addr", "", "listen address (default :8000)")
	cmd.Flags().DurationVar(&o.drainTimeout, "drain-timeout", 0, "wait between the shutdown notice and the forced stop")
	return cmd
}

// load reads configuration and applies the logging flags.
func (o *options) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath, o.variant)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logCfg := cfg.LogConfig()
	logCfg.Output = o.stderr
	return cfg, logging.New(logCfg), nil
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	return server.New(cfg, log).ListenAndServe(ctx)
}

func connect(ctx context.Context, cfg *config.Config, args []string, o *options, log *slog.Logger) error {
	opts := client.Options{
		URL:     cfg.ServerURL,
		Variant: cfg.Variant,
		Output:  o.stdout,
		Logger:  log,
	}

	if cfg.Variant == protocol.VariantJoin {
		opts.Username = usernameArg(args)
		if opts.Username == "" {
			opts.Username = client.DefaultUsername()
		}
		prompt, err := client.NewPrompt(o.stdin, o.stdout, "> ")
		if err != nil {
			return err
		}
		defer prompt.Close()
		opts.Input = prompt
		opts.Output = prompt
		opts.Logger = promptLogger(cfg, prompt, log)
	}

	return client.NewSession(opts).Run(ctx)
}

// promptLogger sends log lines through an interactive prompt so they are
// drawn above the input line while the terminal is in raw mode.
func promptLogger(cfg *config.Config, prompt client.Prompt, log *slog.Logger) *slog.Logger {
	if !prompt.Interactive() {
		return log
	}
	logCfg := cfg.LogConfig()
	logCfg.Output = prompt
	return logging.New(logCfg)
}

// usernameArg returns the second positional argument, if any.
func usernameArg(args []string) string {
	if len(args) < 2 {
		return ""
	}
	return args[1]
}

// Execute runs the command tree for variant with interrupt handling and
// returns the process exit code.
func Execute(variant protocol.Variant) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand(variant)
	return exitCode(cmd.ExecuteContext(ctx), os.Stderr)
}

// exitCode reports err and maps it to a status: 0 for nil, 1 otherwise.
func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, server.ErrForcedShutdown):
		fmt.Fprintln(stderr, "Server closed:", err)
	case errors.Is(err, client.ErrConnectionRefused),
		errors.Is(err, client.ErrConnectionLost):
		fmt.Fprintln(stderr, "WebSocket error:", err)
	default:
		fmt.Fprintln(stderr, "Error:", err)
	}
	return 1
}
