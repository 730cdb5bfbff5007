package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mutagen-io/unison-fsmonitor-agent/internal/cmdutil"
	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/fsmonitor"
	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/logging"
	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/protocol"
	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/registry"
	"github.com/mutagen-io/unison-fsmonitor-agent/pkg/watchermanager"
)

// rootConfiguration stores configuration for the root command.
var rootConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
	// logLevel is the name of the logging threshold applied to stderr and,
	// if set, to the debug log file.
	logLevel string
	// debugLogPath, if non-empty, is an additional append-only file that
	// receives the same log stream as stderr.
	debugLogPath string
}

// rootMain is the entry point for the root command. It runs the protocol
// driver to completion against the process's own stdin and stdout, returning
// once the parent synchronizer closes its end of the pipe or a termination
// signal arrives.
func rootMain(command *cobra.Command, _ []string) error {
	level, ok := logging.NameToLevel(rootConfiguration.logLevel)
	if !ok {
		return fmt.Errorf("invalid log level: %s", rootConfiguration.logLevel)
	}
	logging.SetLevel(level)

	if rootConfiguration.debugLogPath != "" {
		file, err := os.OpenFile(
			rootConfiguration.debugLogPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY,
			0600,
		)
		if err != nil {
			return fmt.Errorf("unable to open debug log file: %w", err)
		}
		defer file.Close()
		if info, err := file.Stat(); err == nil && info.Size() > 0 {
			fmt.Fprintf(os.Stderr, "appending to existing debug log (%s)\n", humanize.Bytes(uint64(info.Size())))
		}
		logging.SetOutput(io.MultiWriter(os.Stderr, file))
	}

	logger := logging.RootLogger.Sublogger("fsmonitor-agent")
	logger.Infof("starting unison-fsmonitor-agent %s (protocol version %d)", fsmonitor.Version, fsmonitor.ProtocolVersion)

	reg := registry.New()
	manager := watchermanager.New(reg, watchermanager.WithLogger(logger))
	defer manager.Stop()

	driver := protocol.New(reg, os.Stdin, os.Stdout, protocol.WithLogger(logger.Sublogger("protocol")))

	driverDone := make(chan error, 1)
	go func() {
		driverDone <- driver.Run()
	}()

	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, cmdutil.TerminationSignals...)

	select {
	case err := <-driverDone:
		if err != nil {
			return fmt.Errorf("protocol driver failed: %w", err)
		}
		return nil
	case <-signalTermination:
		logger.Info("received termination signal, shutting down")
		return nil
	}
}

// rootCommand is the root command.
var rootCommand = &cobra.Command{
	Use:          "fsmonitor-agent",
	Version:      fsmonitor.Version,
	Short:        "Unison filesystem-change-notification agent",
	RunE:         rootMain,
	SilenceUsage: true,
}

func init() {
	// Disable Cobra's command sorting behavior. By default, it sorts
	// commands alphabetically in the help output.
	cobra.EnableCommandSorting = false

	// Disable Cobra's use of mousetrap. This agent is always spawned as a
	// subprocess of the parent synchronizer, never launched interactively.
	cobra.MousetrapHelpText = ""

	rootCommand.SetVersionTemplate("unison-fsmonitor-agent version {{ .Version }}\n")

	flags := rootCommand.Flags()
	flags.SortFlags = false

	// Manually add a help flag to override the default message. Cobra will
	// still implement its logic automatically.
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")

	flags.StringVar(
		&rootConfiguration.logLevel,
		"log-level", "info",
		"Set the logging threshold (disabled|error|warn|info|debug)",
	)
	flags.StringVar(
		&rootConfiguration.debugLogPath, "debug-log-path", "",
		"Append protocol and lifecycle logging to this file in addition to standard error",
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
