package main

import (
	"fmt"
	"io"

	"github.com/danmuck/amqpwire/internal/protocol/schema"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "list the frame types and methods of the protocol description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(cmd)
			if err != nil {
				return err
			}
			printSchema(cmd.OutOrStdout(), spec)
			return nil
		},
	}
}

func printSchema(w io.Writer, spec *schema.Spec) {
	fmt.Fprintf(w, "%s preamble=%q frame_min_size=%d\n", spec.Version(), spec.ProtocolHeader(), spec.FrameMinSize)
	for _, ft := range spec.FrameTypes {
		fmt.Fprintf(w, "frame %d %s\n", ft.ID, ft.Name)
	}
	for _, id := range spec.MethodIDs() {
		line := fmt.Sprintf("method %d.%d %s", id[0], id[1], spec.MethodName(id[0], id[1]))
		if spec.HasContent(id[0], id[1]) {
			line += " +content"
		}
		fmt.Fprintln(w, line)
	}
}
