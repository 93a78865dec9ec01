package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goblincore/ige/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := meta.GetInfo()

		fmt.Printf("ige %s\n", info.Version)
		fmt.Printf("  build:      %s (%s)\n", info.Build, info.Branch)
		fmt.Printf("  built at:   %s\n", info.BuildTime)
		fmt.Printf("  platform:   %s\n", info.Platform)
		fmt.Printf("  go version: %s\n", info.GoVersion)
	},
}
