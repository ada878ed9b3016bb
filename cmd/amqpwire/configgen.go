package main

import (
	"fmt"

	"github.com/danmuck/amqpwire/internal/config"
	"github.com/spf13/cobra"
)

func newConfiggenCmd() *cobra.Command {
	var (
		kind     string
		output   string
		validate bool
		force    bool
	)
	c := &cobra.Command{
		Use:   "configgen",
		Short: "write or validate a tool config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if validate {
				if _, err := config.LoadTapConfig(output); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "validated %s config at %s\n", kind, output)
				return nil
			}
			if err := config.WriteTemplate(output, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", kind, output)
			return nil
		},
	}
	c.Flags().StringVar(&kind, "kind", "tap", "config kind: tap")
	c.Flags().StringVarP(&output, "output", "o", "amqpwire.toml", "config path to write or validate")
	c.Flags().BoolVar(&validate, "validate", false, "validate an existing config file")
	c.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return c
}
