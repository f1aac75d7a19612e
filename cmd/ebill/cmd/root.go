// Package cmd provides the CLI commands for ebill.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/ebill/internal/config"
	"github.com/bher20/ebill/internal/logging"
	"github.com/bher20/ebill/internal/storage"
	"github.com/bher20/ebill/internal/tariff"
)

// Version is set at build time.
var Version = "0.1.0"

// app carries the configuration resolved before any subcommand runs.
type app struct {
	envFile    string
	verbose    bool
	table      string
	tariffFile string
	dbDriver   string
	dbDSN      string

	cfg config.Config
	log *zap.Logger
}

// Execute runs the CLI
func Execute() error {
	defer logging.Sync()
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "ebill",
		Short: "Compute electricity bills from meter consumption",
		Long: `ebill computes electricity bills from a consumption reading.

The base value comes from the rate rule of the customer class; flag
surcharges, taxes, fees and the municipal contribution are layered on top
in the order given. Tariff figures are read from the configured storage
or a tariff document.

Examples:
  ebill compute --class residential --kwh 250 --standard red1
  ebill compute --class commercial --kwh 800 --layer flag:yellow --layer tax:icms
  ebill tariffs show
  ebill watch --tariffs ./tariffs.yaml`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup(cmd) },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading EBILL_* variables")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&a.table, "table", "", "tariff table name (default $EBILL_TABLE or \"default\")")
	flags.StringVar(&a.tariffFile, "tariffs", "", "tariff document (YAML or JSON) to use instead of storage")
	flags.StringVar(&a.dbDriver, "db-driver", "", "storage driver: memory, sqlite, postgres, postgrespool")
	flags.StringVar(&a.dbDSN, "db-dsn", "", "storage DSN")

	root.AddCommand(
		newComputeCmd(a),
		newTariffsCmd(a),
		newStatementCmd(),
		newWatchCmd(a),
		newMigrateCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}
	a.cfg = config.FromEnv()
	if a.table != "" {
		a.cfg.Table = a.table
	}
	if a.tariffFile != "" {
		a.cfg.TariffFile = a.tariffFile
	}
	if a.dbDriver != "" {
		a.cfg.DBDriver = a.dbDriver
	}
	if a.dbDSN != "" {
		a.cfg.DBDSN = a.dbDSN
	}

	logCfg := a.cfg.Logging()
	if a.verbose {
		logCfg.Level = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	a.log = logging.L()
	return nil
}

func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	sc := a.cfg.Storage()
	sc.Logger = a.log
	st, err := storage.Open(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return st, nil
}

// registry builds the registry the command computes against. A tariff
// document takes precedence; otherwise the latest stored table is loaded, and
// the built-in defaults are used when none has been saved yet.
func (a *app) registry(ctx context.Context, st storage.Storage) (*tariff.Registry, error) {
	reg := tariff.New(tariff.WithLogger(a.log))
	if a.cfg.TariffFile != "" {
		doc, err := tariff.LoadFile(a.cfg.TariffFile)
		if err != nil {
			return nil, err
		}
		t, err := doc.Table()
		if err != nil {
			return nil, err
		}
		if err := reg.Import(t); err != nil {
			return nil, fmt.Errorf("import %s: %w", a.cfg.TariffFile, err)
		}
		return reg, nil
	}
	if st == nil {
		return reg, nil
	}
	snap, err := storage.LoadRegistry(ctx, st, a.cfg.Table, reg)
	switch {
	case errors.Is(err, storage.ErrTableNotFound):
		a.log.Debug("no stored tariff table, using defaults", zap.String("table", a.cfg.Table))
	case err != nil:
		return nil, err
	default:
		a.log.Debug("tariff table loaded", zap.String("table", a.cfg.Table), zap.String("snapshot", snap.ID))
	}
	return reg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ebill version %s\n", Version)
		},
	}
}
