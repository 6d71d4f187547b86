package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/jscsandbox"
)

// version is set at link time: -ldflags "-X main.version=v1.2.3"
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			engine := "goja"
			if jscsandbox.IsApplePlatform() {
				engine += " (apple host)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "jscsandbox %s %s %s/%s engine=%s\n",
				version, runtime.Version(), runtime.GOOS, runtime.GOARCH, engine)
		},
	}
}
