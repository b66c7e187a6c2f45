package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/manualrag/internal/app"
	"github.com/dshills/manualrag/internal/config"
	"github.com/dshills/manualrag/internal/logger"
	"github.com/dshills/manualrag/pkg/types"
)

// cli holds state shared by every subcommand
type cli struct {
	cfgFile  string
	logLevel string
	cfg      *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "manualrag",
		Short: "Owner's manual retrieval for vehicle assistants",
		Long: `manualrag locates a vehicle's owner's manual, indexes it and serves
hybrid keyword + semantic search over it to MCP clients.

Example usage:
  manualrag serve                                      # MCP server on stdio
  manualrag acquire --year 2022 --make Toyota --model Camry
  manualrag index --year 2022 --make Toyota --model Camry camry.pdf
  manualrag search --year 2022 --make Toyota --model Camry "oil capacity"`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if c.logLevel != "" {
				cfg.Logging.Level = c.logLevel
			}
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is ./"+config.DefaultFileName+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		c.serveCmd(),
		c.acquireCmd(),
		c.indexCmd(),
		c.searchCmd(),
		c.statusCmd(),
		c.cacheCmd(),
		versionCmd(),
	)
	return root
}

// openApp wires the application; logs go to stderr
func (c *cli) openApp() (*app.App, error) {
	log, err := logger.New(c.cfg.LoggerConfig(), nil)
	if err != nil {
		return nil, err
	}
	return app.New(c.cfg, log)
}

// vehicleFlags binds the descriptor flags shared by several commands
type vehicleFlags struct {
	year  int
	mfr   string
	model string
	trim  string
	vin   string
}

func (f *vehicleFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.year, "year", 0, "model year")
	cmd.Flags().StringVar(&f.mfr, "make", "", "manufacturer, e.g. Toyota")
	cmd.Flags().StringVar(&f.model, "model", "", "model name, e.g. Camry")
	cmd.Flags().StringVar(&f.trim, "trim", "", "trim level")
	cmd.Flags().StringVar(&f.vin, "vin", "", "17-character VIN")
}

func (f *vehicleFlags) vehicle() (types.Vehicle, error) {
	v := types.Vehicle{Year: f.year, Make: f.mfr, Model: f.model, Trim: f.trim, VIN: f.vin}
	return v, v.Validate()
}

func (f *vehicleFlags) set() bool {
	return f.year != 0 || f.mfr != "" || f.model != ""
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
