package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/marcusgoll/Spec-Flow-sub014/internal/storage"
)

var rootCmd = &cobra.Command{Use: "specflow-migrate"}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	Run: func(cmd *cobra.Command, args []string) {
		// Load .env if present
		if err := godotenv.Load(); err != nil {
			fmt.Printf("No .env file found or failed to load: %v. Using --db flag.\n", err)
		}

		path, _ := cmd.Flags().GetString("db")
		if path == "" {
			path = os.Getenv("SPECFLOW_DB_PATH")
		}
		if path == "" {
			fmt.Println("Error: --db flag or SPECFLOW_DB_PATH env var required")
			os.Exit(1)
		}

		if err := storage.Migrate(path); err != nil {
			fmt.Printf("Failed to apply migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	},
}

func main() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("db", "", "Path to the workflow database (optional if SPECFLOW_DB_PATH is set)")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
