// Package cli implements the luaplux command line: loading Lua plugin bundles
// from a directory, dispatching requests to them and inspecting manifests.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/reglet-lua/application/config"
	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

const jsonErrorsFlag = "json-errors"

// app carries what every command needs once flags are parsed.
type app struct {
	logger     *slog.Logger
	configPath string
	logLevel   string
	runtime    entities.Config
}

// NewRootCommand builds the luaplux command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "luaplux",
		Short: "Run and inspect Lua plugins",
		Long: `luaplux loads Lua plugin bundles, resolves their dependencies and
dispatches requests to them.

A bundle is a directory with a manifest (config.toml or plugin.yaml) and a
main.lua entry point.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "runtime config file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().Bool(jsonErrorsFlag, false, "report a failure as a JSON error detail")

	root.AddCommand(
		newRunCommand(a),
		newValidateCommand(a),
		newSchemaCommand(),
		newABICommand(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg := entities.DefaultConfig()
	if a.configPath != "" {
		loaded, err := config.LoadFile(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	logger, err := config.NewLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}
	a.runtime = cfg
	a.logger = logger
	return nil
}

// ReportError writes err to w. When root ran with --json-errors the error is
// written as a JSON ErrorDetail on one line.
func ReportError(root *cobra.Command, w io.Writer, err error) {
	if asJSON, _ := root.PersistentFlags().GetBool(jsonErrorsFlag); asJSON {
		data, mErr := json.Marshal(errors.ToErrorDetail(err))
		if mErr == nil {
			fmt.Fprintln(w, string(data)) //nolint:errcheck
			return
		}
	}
	fmt.Fprintf(w, "Error: %v\n", err) //nolint:errcheck
}
