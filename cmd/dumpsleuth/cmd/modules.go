package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dump-sleuth/internal/extractor"
)

func newModulesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the available extraction modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := extractor.DefaultRegistry(a.logger, nil)
			if err != nil {
				return err
			}
			enabled := make(map[string]bool, len(a.cfg.Modules.Enabled))
			for _, name := range a.cfg.Modules.Enabled {
				enabled[name] = true
			}

			t := newTable("MODULE", "PRIORITY", "ENABLED", "FORMATS")
			for _, m := range registry.Ordered() {
				formats := "all"
				if fs := m.SupportedFormats(); len(fs) > 0 {
					names := make([]string, len(fs))
					for i, f := range fs {
						names[i] = string(f)
					}
					formats = strings.Join(names, ",")
				}
				on := dimStyle.Render("no")
				if enabled[m.Name()] {
					on = okStyle.Render("yes")
				}
				t.add(m.Name(), fmt.Sprint(m.Priority()), on, formats)
			}
			t.render(cmd.OutOrStdout())
			return nil
		},
	}
}
