package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/amqpwire/internal/protocol/frame"
	"github.com/danmuck/amqpwire/internal/protocol/schema"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	var (
		file     string
		chunk    int
		frameMax uint32
	)
	c := &cobra.Command{
		Use:   "decode [hex]",
		Short: "decode a captured frame stream from hex or a binary file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := decodeInput(args, file)
			if err != nil {
				return err
			}
			spec, err := loadSpec(cmd)
			if err != nil {
				return err
			}
			return decode(cmd.OutOrStdout(), data, spec, chunk, frame.LimitsForFrameMax(frameMax))
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "read raw frame bytes from file instead of a hex argument")
	c.Flags().IntVar(&chunk, "stream-chunk", 0, "feed the streaming reader in chunks of this many bytes instead of batch parsing")
	c.Flags().Uint32Var(&frameMax, "frame-max", 0, "negotiated frame_max; 0 disables the size limit")
	return c
}

func decodeInput(args []string, file string) ([]byte, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, fmt.Errorf("decode: pass either a hex argument or --file, not both")
	case file != "":
		return os.ReadFile(file)
	case len(args) == 1:
		return parseHex(args[0])
	default:
		return nil, fmt.Errorf("decode: nothing to decode")
	}
}

// parseHex accepts hex with optional whitespace, colons and a 0x prefix.
func parseHex(raw string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", "\n", "", "\t", "", ":", "").Replace(raw)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode: invalid hex: %w", err)
	}
	return b, nil
}

func decode(w io.Writer, data []byte, spec *schema.Spec, chunk int, limits frame.Limits) error {
	reg, err := spec.Registry()
	if err != nil {
		return err
	}

	var frames []frame.Frame
	var decodeErr error
	if chunk <= 0 {
		frames, decodeErr = frame.ParseAllLimits(reg, data, limits)
	} else {
		r := frame.NewReader(reg, frame.WithLimits(limits))
		for off := 0; off < len(data) && decodeErr == nil; off += chunk {
			end := min(off+chunk, len(data))
			var got []frame.Frame
			got, decodeErr = r.Feed(data[off:end])
			frames = append(frames, got...)
		}
		if decodeErr == nil && r.Buffered() > 0 {
			decodeErr = fmt.Errorf("%w: %d trailing bytes", frame.ErrTruncatedPayload, r.Buffered())
		}
	}

	for i, f := range frames {
		fmt.Fprintf(w, "%3d  %s\n", i, spec.Describe(f))
		if p := f.Payload(); len(p) > 0 {
			fmt.Fprintf(w, "     %s\n", hex.EncodeToString(p))
		}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode: %d frames before error: %w", len(frames), decodeErr)
	}
	return nil
}

func loadSpec(cmd *cobra.Command) (*schema.Spec, error) {
	path, _ := cmd.Flags().GetString("schema")
	if path == "" {
		return schema.Default()
	}
	return schema.Load(path)
}
