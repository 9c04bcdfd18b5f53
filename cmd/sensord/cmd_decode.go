// cmd/sensord/cmd_decode.go
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rx178nwj/plant-dashboard/internal/advert"
	"github.com/rx178nwj/plant-dashboard/internal/protocol"
)

func newDecodeCmd() *cobra.Command {
	var (
		frame   bool
		adv     string
		version int
	)
	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a captured payload offline",
		Long: "Decode hex bytes captured from a device.\n" +
			"By default the input is a sensor-data payload. --frame treats it as a whole\n" +
			"response frame; --advert <common|legacy> as broadcast service data.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseHex(args[0])
			if err != nil {
				return err
			}

			var out any
			switch {
			case adv != "":
				uuid := advert.CommonServiceUUID
				if adv == "legacy" {
					uuid = advert.LegacyServiceUUID
				} else if adv != "common" {
					return fmt.Errorf("decode: --advert must be common or legacy")
				}
				r, err := advert.Decode(map[string][]byte{uuid: raw})
				if err != nil {
					return err
				}
				out = r

			case frame:
				resp, err := protocol.DecodeResponse(raw)
				if err != nil {
					return err
				}
				if !resp.OK() {
					return fmt.Errorf("decode: device status 0x%02x", resp.Status)
				}
				switch resp.ResponseID {
				case protocol.CmdGetDeviceInfo:
					out, err = protocol.DecodeDeviceInfo(resp.Payload)
				default:
					out, err = protocol.DecodeSensorPayload(resp.Payload, int(resp.PayloadLength), version)
				}
				if err != nil {
					return err
				}

			default:
				r, err := protocol.DecodeSensorPayload(raw, len(raw), version)
				if err != nil {
					return err
				}
				out = r
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&frame, "frame", false, "input is a full response frame")
	cmd.Flags().StringVar(&adv, "advert", "", "input is broadcast service data (common|legacy)")
	cmd.Flags().IntVar(&version, "version-hint", 0, "registry payload_version used for unknown version bytes")
	return cmd
}

// parseHex accepts plain, spaced or colon-separated hex.
func parseHex(s string) ([]byte, error) {
	r := strings.NewReplacer(" ", "", ":", "", "0x", "", "\n", "")
	b, err := hex.DecodeString(r.Replace(strings.TrimSpace(s)))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return b, nil
}
