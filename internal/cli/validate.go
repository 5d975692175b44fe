package cli

import (
	stdErrors "errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/reglet-lua/application/dependency"
	"github.com/reglet-dev/reglet-lua/domain/constraint"
	"github.com/reglet-dev/reglet-lua/domain/entities"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check the manifests and dependencies of every bundle in a directory",
		Long: `Parse and validate the manifest of every bundle under <dir>, stopping at the
first invalid one, then check that the bundles can be loaded together: every
required dependency is present with a matching version and no dependency cycle
exists. Nothing is executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validate(cmd, args[0])
		},
	}
}

func (a *app) validate(cmd *cobra.Command, dir string) error {
	bundles, err := readBundles(dir, a)
	if err != nil {
		return err
	}

	manifests := make(map[string]*entities.PluginManifest, len(bundles))
	list := make([]*entities.PluginManifest, 0, len(bundles))
	for _, b := range bundles {
		manifests[b.Manifest.Name] = b.Manifest
		list = append(list, b.Manifest)
	}

	order, err := dependency.Order(list)
	if err != nil {
		return err
	}

	resolver := dependency.NewResolver(dependency.WithLogger(a.logger))
	loaded := make(map[string]constraint.Version, len(order))
	var errs []error

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tSTATUS") //nolint:errcheck
	for _, name := range order {
		m := manifests[name]
		status := "ok"
		if err := resolver.Validate(m, loaded); err != nil {
			errs = append(errs, err)
			status = "unresolved"
		} else {
			loaded[name] = m.PluginVersion()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, m.PluginVersion(), status) //nolint:errcheck
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return stdErrors.Join(errs...)
}
