package main

import (
	"os"

	"github.com/danmuck/amqpwire/internal/observability"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:           "amqpwire",
		Short:         "decode and tap AMQP 0-9-1 frame streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.PersistentFlags().String("schema", "", "protocol description TOML (defaults to the embedded AMQP 0-9-1 schema)")

	c.AddCommand(
		newDecodeCmd(),
		newTapCmd(),
		newConfiggenCmd(),
		newSchemaCmd(),
	)
	return c
}

func main() {
	logger := observability.InitLogger("amqpwire")
	if err := newRootCmd().Execute(); err != nil {
		logger.Error().Err(err).Msg("amqpwire failed")
		os.Exit(1)
	}
}
