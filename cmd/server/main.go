/*
main.go - Application entry point

PURPOSE:
  Command line for the HR leave engine. Loads configuration, builds the
  logger and dispatches to the serve and reset subcommands.

COMMANDS:
  serve    Start the HTTP API (default when no subcommand is given)
  reset    Clear the database, optionally loading a demo scenario

PERSISTENT FLAGS:
  -c, --config   YAML config file
  -e, --env      .env file (default: ./.env when present)

CONFIGURATION:
  Defaults < YAML file < .env < HR_* environment variables.
  e.g. HR_SERVER_PORT=3000 HR_STORAGE_DB_PATH=./data/hr.db HR_LOG_LEVEL=debug
  See config/config.go for every key.

EXAMPLES:
  # Run with defaults (port 8080, ./hr.db)
  ./hr-server serve

  # Run in memory with demo data
  HR_STORAGE_DB_PATH=":memory:" HR_SEED_SCENARIO=demo ./hr-server serve

  # Wipe the database and load the demo company
  ./hr-server reset --scenario demo

SEE ALSO:
  - serve.go: Server wiring and graceful shutdown
  - reset.go: Maintenance command
  - config/config.go: Configuration keys
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/config"
	"github.com/warp/hr-engine/logging"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configFile string
	envFile    string
}

func (f *rootFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configFile, "config", "c", "", "YAML config file, e.g. --config config.yaml")
	fs.StringVarP(&f.envFile, "env", "e", "", "Environment file, e.g. --env .env")
}

func (f *rootFlags) options(onChange func(*config.Configuration)) config.Options {
	return config.Options{ConfigFile: f.configFile, EnvFile: f.envFile, OnChange: onChange}
}

// app is the state built once the configuration is known.
type app struct {
	loader *config.Loader
	logger *zap.Logger
	level  zap.AtomicLevel
}

// bootstrap loads the configuration and installs the global logger. The
// log level follows config file changes.
func bootstrap(flags *rootFlags) (*app, error) {
	a := &app{}
	loader, err := config.Load(flags.options(func(c *config.Configuration) {
		if a.logger == nil {
			return
		}
		lvl := logging.ParseLevel(c.Log.Level)
		if lvl != a.level.Level() {
			a.level.SetLevel(lvl)
			a.logger.Info("log level changed", zap.String("level", lvl.String()))
		}
	}))
	if err != nil {
		return nil, err
	}

	logger, level := logging.New(loader.Current().Log.Level)
	zap.ReplaceGlobals(logger)
	a.loader, a.logger, a.level = loader, logger, level
	return a, nil
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "hr-server",
		Short:         "HR leave approval engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.bind(root.PersistentFlags())

	serve := newServeCmd(flags)
	root.AddCommand(serve, newResetCmd(flags))
	root.RunE = serve.RunE
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
