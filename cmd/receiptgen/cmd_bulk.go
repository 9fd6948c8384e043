package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"receiptgen/cmd/receiptgen/ui"
	"receiptgen/internal/bulk"
	"receiptgen/internal/generator"
	"receiptgen/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	bulkNamesFile string
	bulkOutDir    string
	bulkPlain     bool
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Export a zip of receipts for a list of names",
	Long: `Reads one student name per line (from --names or stdin) and writes a zip
with student_list.txt and one rendered receipt per name. All receipts share one
generated signatory and signature.`,
	RunE: runBulk,
}

func init() {
	bulkCmd.Flags().StringVarP(&bulkNamesFile, "names", "n", "-", "File with one student name per line (- for stdin)")
	bulkCmd.Flags().StringVarP(&bulkOutDir, "out", "o", ".", "Output directory")
	bulkCmd.Flags().BoolVar(&bulkPlain, "plain", false, "Log progress lines instead of the progress bar")
}

func readNames(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read names: %w", err)
	}
	return string(data), nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func runBulk(cmd *cobra.Command, args []string) error {
	text, err := readNames(bulkNamesFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	total := len(bulk.ParseNames(text))
	if total == 0 {
		return bulk.ErrNoNames
	}

	ctx, cancel := commandContext()
	defer cancel()

	comps, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	pipeline := bulk.New(comps.content, comps.browser, generator.New(), bulk.Options{MaxNames: cfg.Bulk.MaxNames})
	req := bulk.Request{Names: text, School: comps.settings.School()}

	var res *bulk.Result
	if bulkPlain || !isTerminal(os.Stderr) {
		res, err = runBulkPlain(ctx, cmd.ErrOrStderr(), pipeline, req)
	} else {
		res, err = runBulkTUI(ctx, pipeline, req, total)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(bulkOutDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(bulkOutDir, res.ArchiveName)
	if err := os.WriteFile(path, res.Archive, 0o644); err != nil {
		return err
	}
	logging.Bulk("wrote %s (%d receipts)", path, res.Rendered)
	fmt.Fprint(cmd.OutOrStdout(), ui.Markdown(ui.BulkSummary(res, path), 80))
	return nil
}

func runBulkPlain(ctx context.Context, w io.Writer, p *bulk.Pipeline, req bulk.Request) (*bulk.Result, error) {
	updates, unsubscribe := p.Tracker().Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range updates {
			if u.Stage != bulk.StageIdle {
				fmt.Fprintf(w, "%s %d/%d\n", u.Stage, u.Current, u.Total)
			}
		}
	}()
	res, err := p.Run(ctx, req)
	unsubscribe()
	<-done
	return res, err
}

func runBulkTUI(ctx context.Context, p *bulk.Pipeline, req bulk.Request, total int) (*bulk.Result, error) {
	prog := tea.NewProgram(ui.NewProgressModel(total), tea.WithOutput(os.Stderr))

	updates, unsubscribe := p.Tracker().Subscribe()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for u := range updates {
			prog.Send(ui.ProgressMsg(u))
		}
	}()
	go func() {
		res, err := p.Run(ctx, req)
		unsubscribe()
		<-forwarded
		prog.Send(ui.DoneMsg{Result: res, Err: err})
	}()

	final, err := prog.Run()
	if err != nil {
		return nil, err
	}
	return final.(ui.ProgressModel).Result()
}
