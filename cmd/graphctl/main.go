// Command graphctl exercises a goGraph application from the shell: it calls the graph
// API, signs and verifies signed requests, fetches application tokens and serves a
// demo site guarded by the canvas and OAuth flows.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	goGraph "github.com/MrEthical07/goGraph"
)

// Exit codes of graphctl.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	// ExitCodeConfig reports an invalid or incomplete configuration.
	ExitCodeConfig = 2
	// ExitCodeRejected reports a signature or API rejection.
	ExitCodeRejected = 3
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "graphctl",
		Short: "Call the graph API and exercise goGraph authentication flows",
		// errors are reported once by main
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug records to stderr")

	cmd.AddCommand(
		newGetCmd(opts),
		newAppTokenCmd(opts),
		newSignCmd(opts),
		newVerifyCmd(opts),
		newServeCmd(opts),
		newBenchCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// buildApp loads the configuration and builds an App from it.
func (o *rootOptions) buildApp(cmd *cobra.Command, configure func(*goGraph.Builder, *fileConfig)) (*goGraph.App, *fileConfig, error) {
	fc, err := loadConfig(o.configPath, lookupEnv)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := fc.appConfig()
	if err != nil {
		return nil, nil, err
	}

	b := goGraph.New().WithConfig(cfg).WithLogger(o.logger(cmd.ErrOrStderr()))
	if configure != nil {
		configure(b, fc)
	}
	app, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return app, fc, nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, goGraph.ErrInvalidArgument):
		return ExitCodeConfig
	case errors.Is(err, goGraph.ErrSignatureMismatch),
		errors.Is(err, goGraph.ErrUnsupportedAlgorithm),
		errors.Is(err, goGraph.ErrAPI):
		return ExitCodeRejected
	default:
		return ExitCodeError
	}
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphctl:", err)
	}
	os.Exit(exitCode(err))
}

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv
