package cmd

import (
	"fmt"
	"io"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/pkg/model"
)

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <dump>",
		Short: "Show the detected format and header of a dump",
		Long:  `Info identifies a dump file by its header signature and prints the parsed header fields without running any module.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizes, err := a.cfg.Analysis.Sizes()
			if err != nil {
				return err
			}
			h, err := dump.Open(args[0], dump.OpenOptions{
				MaxFileSize:   sizes.MaxFileSize,
				UseMmap:       a.cfg.Analysis.UseMmap,
				MmapThreshold: sizes.MmapThreshold,
				Logger:        a.logger,
			})
			if err != nil {
				return err
			}
			defer h.Close()

			printInfo(cmd.OutOrStdout(), h.Metadata(), h.Warnings())
			return nil
		},
	}
}

func printInfo(w io.Writer, meta model.DumpMetadata, warnings []string) {
	fmt.Fprintln(w, titleStyle.Render(meta.FileName))
	t := newTable("FIELD", "VALUE")
	t.add("path", meta.FilePath)
	t.add("size", fmt.Sprintf("%s (%d bytes)", units.HumanSize(float64(meta.FileSize)), meta.FileSize))
	t.add("format", string(meta.Format))
	t.add("access", string(meta.AccessMode))
	meta.Header.Fields(meta.Format).Range(func(key string, v model.Value) bool {
		t.add(key, valueString(v))
		return true
	})
	t.render(w)

	for _, warn := range warnings {
		fmt.Fprintln(w, warnStyle.Render("warning: ")+warn)
	}
}

func valueString(v model.Value) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return "?"
	}
	return string(raw)
}
