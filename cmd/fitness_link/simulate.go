package main

import (
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Stream from a simulated fitness band",
		Long: `Run a session against simulated devices. Measurements change every
sim.interval and the control API on sim.control_addr can set values, push raw
payloads or drop the connection:

  curl localhost:9901/api/devices
  curl -X POST 'localhost:9901/api/devices/00:11:22:33:44:01/set?heartRate=150'
  curl -X POST localhost:9901/api/devices/00:11:22:33:44:01/drop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnect(cmd, appOptions{simulate: true})
		},
	}
	cmd.Flags().Bool("dump", false, "Print the attribute groups of the device after connecting")
	return cmd
}
