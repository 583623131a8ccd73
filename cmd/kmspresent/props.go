package kmspresent

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/helixml/kmspresent/pkg/config"
	"github.com/helixml/kmspresent/pkg/kms"
)

func newPropsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "props",
		Short: "List the atomic properties of the output's plane, CRTC and connector.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			card, err := openCard(cmd.Context(), cfg.Display)
			if err != nil {
				return err
			}
			defer card.Close()

			out, err := card.DiscoverOutput(cfg.Display.Connector)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Object", "Property", "ID", "Value", "Immutable")

			for _, obj := range []kms.Object{out.Plane, out.CRTC, out.Connector} {
				props, err := card.Properties(obj)
				if err != nil {
					return err
				}
				for _, p := range props {
					immutable := ""
					if p.Immutable {
						immutable = "yes"
					}
					if err := table.Append([]string{
						obj.String(),
						p.Name,
						strconv.FormatUint(uint64(p.ID), 10),
						strconv.FormatUint(p.Value, 10),
						immutable,
					}); err != nil {
						return err
					}
				}
			}
			return table.Render()
		},
	}
}
