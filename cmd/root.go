package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/goblincore/ige/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "ige",
	Short: "Client tooling for the IGE game network stream",
}

func init() {
	RootCmd.AddCommand(ConnectCmd)
	RootCmd.AddCommand(MockCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
