package kmspresent

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var Fatal = FatalErrorHandler

func NewRootCmd() *cobra.Command {
	var logLevel string

	RootCmd := &cobra.Command{
		Use:   getCommandLineExecutable(),
		Short: "kmspresent",
		Long:  `Fence-synchronized atomic KMS presentation`,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setupLogging(logLevel)
		},
		SilenceUsage: true,
	}
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getDefaultOptionString("LOG_LEVEL", "info"),
		"Log level: trace, debug, info, warn or error")

	RootCmd.AddCommand(newRunCmd())
	RootCmd.AddCommand(newPropsCmd())
	RootCmd.AddCommand(newEnvCmd())
	RootCmd.AddCommand(newVersionCommand())

	return RootCmd
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

func Execute() {
	RootCmd := NewRootCmd()
	RootCmd.SetContext(context.Background())
	RootCmd.SetOutput(os.Stdout)

	if err := RootCmd.Execute(); err != nil {
		Fatal(RootCmd, err.Error(), 1)
	}
}
