package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type deviceRow struct {
	Path      string `json:"device_path"`
	Name      string `json:"device_name"`
	ID        string `json:"device_id"`
	VendorID  string `json:"vendor_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 video devices",
		Long:  `Lists every /dev/videoN node with its name, stable id and USB vendor and product id.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			found, err := findDevices()
			if err != nil {
				return err
			}

			rows := make([]deviceRow, len(found))
			for i, d := range found {
				rows[i] = deviceRow{Path: d.DevicePath, Name: d.DeviceName, ID: d.DeviceID}
				if d.VendorID != 0 || d.ProductID != 0 {
					rows[i].VendorID = fmt.Sprintf("%04x", d.VendorID)
					rows[i].ProductID = fmt.Sprintf("%04x", d.ProductID)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No video devices found")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tUSB ID\tNAME\tID")
			for _, r := range rows {
				usb := "-"
				if r.VendorID != "" {
					usb = r.VendorID + ":" + r.ProductID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Path, usb, r.Name, r.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
