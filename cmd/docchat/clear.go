package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(clearCmd)
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Destroy and recreate the empty collection",
	Long: `Destroy the vector store collection and recreate it empty with the
same configuration. Irreversible. The embeddings cache snapshot is left in
place; it is an independent artifact and never read back into the index.`,
	RunE: runClear,
}

func runClear(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.service.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("Collection %q cleared\n", a.cfg.Store.Collection)
	return nil
}
