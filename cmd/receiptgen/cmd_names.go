package main

import (
	"fmt"
	"os"
	"strings"

	"receiptgen/cmd/receiptgen/ui"
	"receiptgen/internal/content"
	"receiptgen/internal/receipt"

	"github.com/spf13/cobra"
)

var (
	namesCount int
	namesOut   string
)

var namesCmd = &cobra.Command{
	Use:   "names",
	Short: "Generate realistic student and parent names",
	Long: `Asks the AI service for student/parent name pairs. With --out the student
names are written one per line, ready for "receiptgen bulk --names".`,
	RunE: runNames,
}

func init() {
	namesCmd.Flags().IntVar(&namesCount, "count", 10, fmt.Sprintf("Number of names (1-%d)", content.MaxNamePairs))
	namesCmd.Flags().StringVarP(&namesOut, "out", "o", "", "Write student names to this file")
}

func runNames(cmd *cobra.Command, args []string) error {
	if !content.ValidCount(namesCount) {
		return fmt.Errorf("count must be between 1 and %d", content.MaxNamePairs)
	}
	ctx, cancel := commandContext()
	defer cancel()

	provider, err := content.New(ctx, cfg)
	if err != nil {
		return err
	}
	pairs := provider.NamePairs(ctx, namesCount)
	if len(pairs) == 0 {
		return fmt.Errorf("failed to generate names")
	}

	if namesOut != "" {
		list := strings.Join(receipt.StudentNames(pairs), "\n") + "\n"
		if err := os.WriteFile(namesOut, []byte(list), 0o644); err != nil {
			return err
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), ui.Markdown(ui.NamesTable(pairs), 80))
	return nil
}
