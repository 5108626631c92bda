package cmd

import (
	"fmt"

	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/internal/nats"
	"github.com/spf13/cobra"
)

// CreateControlCmd creates the control command.
func CreateControlCmd() *cobra.Command {
	var (
		natsURL string
		device  string
		dir     string
		reason  string
	)

	cmd := &cobra.Command{
		Use:       "control {dump|start|stop}",
		Short:     "Send a command to a running camnode over NATS",
		Long:      `Publishes a control message to the camera session serving --device. dump needs --dir.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{nats.ActionDump, nats.ActionStart, nats.ActionStop},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := args[0]
			if action == nats.ActionDump && dir == "" {
				return fmt.Errorf("dump requires --dir")
			}

			pub, err := nats.NewControlPublisher(natsURL, logging.GetLogger("nats"))
			if err != nil {
				return fmt.Errorf("connect to %s: %w", natsURL, err)
			}
			defer pub.Close()

			msg := nats.ControlMessage{Action: action, Device: device, Dir: dir, Reason: reason}
			if err := pub.Send(msg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", action, nats.SubjectControl(device))
			return nil
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats", "nats://127.0.0.1:4222", "NATS server URL")
	cmd.Flags().StringVarP(&device, "device", "d", "/dev/video0", "Device node of the target session")
	cmd.Flags().StringVar(&dir, "dir", "", "Dump directory on the camera host")
	cmd.Flags().StringVar(&reason, "reason", "cli", "Free-form reason recorded with the command")
	return cmd
}
