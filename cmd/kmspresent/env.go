package kmspresent

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixml/kmspresent/pkg/config"
)

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables kmspresent reads",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), generateEnvHelpText(&config.Config{}, ""))
		},
	}
}
