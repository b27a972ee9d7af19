package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/notargets/vadd/device"
)

func newDevicesCmd() *cobra.Command {
	var backend, deviceType string
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List compute platforms and devices",
		Long: `List the platforms and devices each backend can see. Without --backend
every registered backend is listed; backends that cannot be loaded are
reported as unavailable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := device.ParseType(deviceType)
			if err != nil {
				return withCode(exitUsage, err)
			}
			backends := device.Backends()
			if cmd.Flags().Changed("backend") {
				backends = []string{backend}
			}
			out := cmd.OutOrStdout()
			for _, name := range backends {
				rt, err := device.Open(name)
				if err != nil {
					if cmd.Flags().Changed("backend") {
						return withCode(exitUsage, err)
					}
					fmt.Fprintf(out, "%s: unavailable: %v\n", name, err)
					continue
				}
				listRuntime(out, rt, filter)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Only list this backend")
	cmd.Flags().StringVar(&deviceType, "device-type", "all", "Device type filter: all, cpu, accelerator")
	return cmd
}

func listRuntime(out io.Writer, rt device.Runtime, filter device.Type) {
	platforms, err := rt.Platforms()
	if err != nil {
		fmt.Fprintf(out, "%s: unavailable: %v\n", rt.Name(), err)
		return
	}
	fmt.Fprintf(out, "%s: %d platform(s), kernels in %s\n", rt.Name(), len(platforms), rt.Dialect())
	for i, p := range platforms {
		info := p.Info()
		fmt.Fprintf(out, "  Platform %d: %s (%s, %s)\n", i, info.Name, info.Vendor, info.Version)
		devices, err := p.Devices(filter)
		if err != nil {
			fmt.Fprintf(out, "    error: %v\n", err)
			continue
		}
		if len(devices) == 0 {
			fmt.Fprintf(out, "    no %s devices\n", filter)
		}
		for j, d := range devices {
			di := d.Info()
			fmt.Fprintf(out, "    Device %d: %s [%s] memory=%d MiB max_work_group_size=%d\n",
				j, di.Name, di.Type, di.MemoryBytes>>20, di.MaxWorkGroupSize)
		}
	}
}
