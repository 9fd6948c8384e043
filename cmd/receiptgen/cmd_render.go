package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"receiptgen/internal/bulk"
	"receiptgen/internal/generator"
	"receiptgen/internal/logging"
	"receiptgen/internal/receipt"
	"receiptgen/internal/render"

	"github.com/spf13/cobra"
)

var (
	renderRecordFile string
	renderGenerate   bool
	renderSign       bool
	renderOutDir     string
	renderPDF        bool
	renderHTML       bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Export a single receipt",
	Long: `Renders one receipt to PNG (or PDF/HTML). The record comes from --record
(JSON with the web form's field names) layered over the saved settings, and
--generate fills student and payment details with random values.`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVar(&renderRecordFile, "record", "", "JSON record file")
	renderCmd.Flags().BoolVar(&renderGenerate, "generate", false, "Generate student and payment details")
	renderCmd.Flags().BoolVar(&renderSign, "sign", false, "Generate a signature image for the signatory")
	renderCmd.Flags().StringVarP(&renderOutDir, "out", "o", ".", "Output directory")
	renderCmd.Flags().BoolVar(&renderPDF, "pdf", false, "Write a PDF instead of a PNG")
	renderCmd.Flags().BoolVar(&renderHTML, "html", false, "Write the HTML document without rasterizing")
}

// loadRecord layers a JSON record file over base.
func loadRecord(path string, base receipt.Record) (receipt.Record, error) {
	rec := base
	if path == "" {
		return rec, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("read record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse record %s: %w", path, err)
	}
	return rec, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	comps, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	rec := receipt.Default()
	comps.settings.Apply(&rec)
	if rec, err = loadRecord(renderRecordFile, rec); err != nil {
		return err
	}
	if renderGenerate {
		gen := generator.New()
		gen.Student().Apply(&rec)
		gen.Payment().Apply(&rec)
	}
	if renderSign {
		name := strings.TrimSpace(rec.AccountantName)
		if name == "" {
			return fmt.Errorf("a signatory name is required to generate a signature")
		}
		if rec.SignatureURL = comps.content.SignatureImage(ctx, name, bulk.SignatureDetail); rec.SignatureURL == "" {
			return fmt.Errorf("failed to generate signature")
		}
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(renderOutDir, 0o755); err != nil {
		return err
	}
	filename := receipt.SingleFilename(rec)

	var out []byte
	switch {
	case renderHTML:
		if out, err = comps.templates.Page(rec); err != nil {
			return err
		}
		filename = strings.TrimSuffix(filename, ".png") + ".html"
	default:
		png, err := comps.browser.Rasterize(ctx, rec)
		if err != nil {
			return err
		}
		out = png
		if renderPDF {
			if out, err = render.PDF(png, rec.ReceiptNumber); err != nil {
				return err
			}
			filename = strings.TrimSuffix(filename, ".png") + ".pdf"
		}
	}

	path := filepath.Join(renderOutDir, filename)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	logging.Render("wrote %s (%d bytes)", path, len(out))
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
