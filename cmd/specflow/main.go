package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcusgoll/Spec-Flow-sub014/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "specflow",
	Short: "Coordinate multi-phase delivery workflows with resumable sprint scheduling",
}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
