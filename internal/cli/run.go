package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/host"
	"github.com/reglet-dev/reglet-lua/hostfuncs"
	"github.com/reglet-dev/reglet-lua/infrastructure/bundle"
	"github.com/reglet-dev/reglet-lua/infrastructure/wazero"
)

type runOptions struct {
	wasmPath   string
	wasmPrefix string
}

func newRunCommand(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <dir> <plugin> <request> [json-args]",
		Short: "Load every bundle in a directory and dispatch one request",
		Long: `Load every bundle under <dir> in dependency order, then call <request> on
<plugin>. Arguments are given as a JSON array and results are printed as one.`,
		Example: `  luaplux run ./plugins calc sum '[4, 6]'
  luaplux run ./plugins calc fast_sum '[4, 6]' --wasm arith.wasm`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rawArgs string
			if len(args) == 4 {
				rawArgs = args[3]
			}
			return a.run(cmd, opts, args[0], args[1], args[2], rawArgs)
		},
	}

	cmd.Flags().StringVar(&opts.wasmPath, "wasm", "", "WebAssembly module whose exports become native functions")
	cmd.Flags().StringVar(&opts.wasmPrefix, "wasm-prefix", "wasm", "table the WebAssembly exports are placed under")
	return cmd
}

func (a *app) run(cmd *cobra.Command, opts *runOptions, dir, plugin, request, rawArgs string) error {
	ctx := cmd.Context()

	args, err := parseArgs(rawArgs)
	if err != nil {
		return err
	}

	regOpts := []hostfuncs.RegistryOption{
		hostfuncs.WithRegistryLogger(a.logger),
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(a.logger),
		),
		hostfuncs.WithBundle(hostfuncs.CoreBundle(a.logger)),
	}
	if opts.wasmPath != "" {
		wasmBytes, err := os.ReadFile(opts.wasmPath)
		if err != nil {
			return fmt.Errorf("failed to read wasm module: %w", err)
		}
		mod, err := wazero.Load(ctx, wasmBytes, wazero.WithPrefix(opts.wasmPrefix), wazero.WithLogger(a.logger))
		if err != nil {
			return err
		}
		defer mod.Close(ctx) //nolint:errcheck
		regOpts = append(regOpts, hostfuncs.WithBundle(mod))
	}

	hctx, err := host.NewContext(regOpts...)
	if err != nil {
		return err
	}
	manager := host.NewManager(
		host.WithLogger(a.logger),
		host.WithStdout(cmd.OutOrStdout()),
		host.WithRuntimeConfig(a.runtime),
	)
	if err := hctx.RegisterManager(manager); err != nil {
		return err
	}
	defer manager.Close(ctx) //nolint:errcheck

	bundles, err := readBundles(dir, a)
	if err != nil {
		return err
	}
	if err := manager.LoadAll(ctx, bundles); err != nil {
		return err
	}

	results, err := manager.Dispatch(ctx, plugin, request, args...)
	if err != nil {
		return err
	}

	out, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func readBundles(dir string, a *app) ([]entities.Bundle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	reader := bundle.NewReader(os.DirFS(abs),
		bundle.WithBaseDir(abs),
		bundle.WithManifestLoader(host.NewLoader()),
		bundle.WithLogger(a.logger),
	)
	return reader.ReadAll()
}

// parseArgs decodes a JSON array into request arguments.
func parseArgs(raw string) ([]entities.Value, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := hostfuncs.DecodeJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if v.Kind() != entities.KindTable || v.IsMapping() {
		return nil, fmt.Errorf("invalid arguments: expected a JSON array")
	}
	return v.Items(), nil
}
