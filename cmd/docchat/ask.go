package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the indexed corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	question := strings.Join(args, " ")
	answer, err := a.service.Ask(cmd.Context(), question)
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(answer, "", "  ")
	fmt.Println(string(out))
	return nil
}
