package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/google/subcommands"

	"github.com/liquidgecka/seriespack/config"
	"github.com/liquidgecka/seriespack/internal/sloghelper"
)

// Common arguments.
var (
	Config = flag.String(
		"c",
		"",
		"Path to the config file.")

	VersionFlag = flag.Bool(
		"V",
		false,
		"Display the build version and then exit.")
)

// Exit codes shared by every subcommand.
const (
	exitSuccess = subcommands.ExitSuccess
	exitConfig  = subcommands.ExitFailure
	exitStage   = subcommands.ExitStatus(2)
)

// Expected to be set via -ldflags/-X by the linker
var BuildVersion string
var BuildTimeEpoch string

func Version() string {
	if BuildVersion == "" {
		BuildVersion = "Unknown"
		BuildTimeEpoch = "unknown"
	}
	return fmt.Sprintf(
		"seriespack: %s ts=%s go=%s\n",
		BuildVersion,
		BuildTimeEpoch,
		runtime.Version())
}

// Parses the config file and starts logging. Failures here exit the
// process since nothing can run without a valid configuration.
func configure() *config.Config {
	cnf, err := config.Parse(*Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(int(exitConfig))
	} else if err := cnf.InitializeLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(int(exitConfig))
	}
	cnf.GetLogger().LogAttrs(
		context.Background(),
		slog.LevelDebug,
		"Configuration loaded.",
		sloghelper.String("config", *Config),
		sloghelper.String("build-version", BuildVersion),
		sloghelper.String("build-time", BuildTimeEpoch))
	return cnf
}

// Every subcommand receives the parsed configuration as its first
// argument.
func configFrom(args []interface{}) *config.Config {
	return args[0].(*config.Config)
}

// Reports that a required flag was not given.
func missing(f *flag.FlagSet, names ...string) bool {
	for _, name := range names {
		if fl := f.Lookup(name); fl != nil && fl.Value.String() == "" {
			fmt.Fprintf(os.Stderr, "-%s is required.\n", name)
			f.Usage()
			return true
		}
	}
	return false
}

// The batch directory for a submission written under outputPath.
func batchDir(outputPath, submission string) string {
	return filepath.Join(outputPath, submission)
}

func main() {
	config.SetupFlags()
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&processCmd{}, "stages")
	subcommands.Register(&packageCmd{}, "stages")
	subcommands.Register(&splitCmd{}, "stages")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&verifyCmd{}, "")
	flag.Parse()

	if *VersionFlag {
		fmt.Print(Version())
		os.Exit(0)
	}

	cnf := configure()
	SetupRotation(cnf)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM)
	status := subcommands.Execute(ctx, cnf)
	stop()
	os.Exit(int(status))
}
