package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/HerbHall/strata/internal/discovery"
	"github.com/HerbHall/strata/internal/host"
	"github.com/HerbHall/strata/pkg/plugin"
)

func newPluginsCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect the plugins the host would load",
		Example: `  # List enabled plugins and where they come from
  strata plugins list

  # Show one plugin's resolved shape as JSON
  strata plugins inspect upload -o json`,
	}
	cmd.AddCommand(newPluginsListCommand(flags))
	cmd.AddCommand(newPluginsInspectCommand(flags))
	return cmd
}

func newPluginsListCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enabled plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLoadedApp(cmd.Context(), flags, func(s *session, app *host.App) error {
				return printPluginList(cmd.OutOrStdout(), app, s.catalog)
			})
		},
	}
}

func newPluginsInspectCommand(flags *rootFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "inspect <plugin>",
		Short: "Show a plugin's routes, handlers, content types and resolved config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLoadedApp(cmd.Context(), flags, func(_ *session, app *host.App) error {
				p, ok := app.Plugin(args[0])
				if !ok {
					return fmt.Errorf("plugin %q is not registered", args[0])
				}
				return printPlugin(cmd.OutOrStdout(), inspect(args[0], p), output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml or json)")
	return cmd
}

// withLoadedApp loads the plugins without starting them, runs fn and
// releases the loaded scripts.
func withLoadedApp(ctx context.Context, flags *rootFlags, fn func(*session, *host.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := flags.setup()
	if err != nil {
		return err
	}
	defer func() { _ = s.logger.Sync() }()

	app := s.app()
	if err := app.Load(ctx); err != nil {
		return err
	}
	defer app.Close()
	return fn(s, app)
}

func printPluginList(w io.Writer, app *host.App, catalog *plugin.Catalog) error {
	record := cast.ToStringMap(app.Config().Get(discovery.EnabledPluginsKey))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCE\tPATH\tROUTES\tCONTENT TYPES")
	for _, name := range app.PluginNames() {
		p, _ := app.Plugin(name)
		entry := cast.ToStringMap(record[name])
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
			name,
			cast.ToString(entry["source"]),
			cast.ToString(entry["path"]),
			len(p.Routes),
			len(p.ContentTypes),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if report, ok := app.Report(); ok && len(report.Skipped) > 0 {
		fmt.Fprintf(w, "\nno server entry: %v\n", report.Skipped)
	}

	var idle []string
	for _, name := range catalog.Names() {
		if _, ok := app.Plugin(name); !ok {
			idle = append(idle, name)
		}
	}
	if len(idle) > 0 {
		fmt.Fprintf(w, "\ncompiled in, not enabled: %v\n", idle)
	}
	return nil
}

type inspectView struct {
	Name         string         `json:"name" yaml:"name"`
	Config       map[string]any `json:"config" yaml:"config"`
	Routes       []plugin.Route `json:"routes" yaml:"routes"`
	Controllers  []string       `json:"controllers" yaml:"controllers"`
	Services     []string       `json:"services" yaml:"services"`
	Policies     []string       `json:"policies" yaml:"policies"`
	Middlewares  []string       `json:"middlewares" yaml:"middlewares"`
	ContentTypes map[string]any `json:"contentTypes" yaml:"contentTypes"`
	Extra        map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func inspect(name string, p *plugin.Plugin) inspectView {
	v := inspectView{
		Name:         name,
		Config:       p.Config,
		Routes:       p.Routes,
		Controllers:  keys(p.Controllers),
		Services:     keys(p.Services),
		Policies:     keys(p.Policies),
		Middlewares:  keys(p.Middlewares),
		ContentTypes: make(map[string]any, len(p.ContentTypes)),
		Extra:        p.Extra,
	}
	for ct, c := range p.ContentTypes {
		if c != nil {
			v.ContentTypes[ct] = map[string]any(c.Schema)
		}
	}
	return v
}

func printPlugin(w io.Writer, v inspectView, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
