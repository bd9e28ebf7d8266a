/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/orchestrator"
)

var (
	batchAction     string
	batchInputFile  string
	batchOutputFile string
	batchTargetLang string
	batchColumns    []int
	batchHeader     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Apply an action to the cells of a CSV file",
	Long: `Run one action over every non-empty cell of the selected CSV columns.

By default all columns are processed. Use -l to select specific columns
(0-indexed). The flag may be repeated to select multiple columns. Cells
shorter than the minimum input length are copied unchanged.

Example:
  studyspark batch -a translate --target Ukrainian -i data.csv -o out.csv -l 1 -l 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchInputFile == batchOutputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}
		a, err := action.Parse(batchAction)
		if err != nil {
			return err
		}

		f, err := os.Open(batchInputFile)
		if err != nil {
			return fmt.Errorf("failed to open input CSV: %w", err)
		}
		records, err := csv.NewReader(f).ReadAll()
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("CSV file is empty")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(pipelineOptions{history: true, cache: true})
		if err != nil {
			return err
		}
		defer p.Close()

		colSet := make(map[int]bool, len(batchColumns))
		for _, c := range batchColumns {
			colSet[c] = true
		}
		all := len(batchColumns) == 0

		out := make([][]string, len(records))
		var processed, skipped, failed int
		for rowIdx, row := range records {
			out[rowIdx] = append([]string(nil), row...)
			if batchHeader && rowIdx == 0 {
				continue
			}

			for colIdx, cell := range row {
				if (!all && !colSet[colIdx]) || cell == "" {
					continue
				}

				res, err := p.orch.Execute(ctx, orchestrator.Request{
					Action: a,
					Text:   cell,
					Params: action.Params{TargetLanguage: batchTargetLang},
				}, nil)
				var verr *orchestrator.ValidationError
				switch {
				case errors.As(err, &verr):
					skipped++
					continue
				case errors.Is(err, orchestrator.ErrCancelled):
					return err
				case err != nil:
					fmt.Fprintf(os.Stderr, "Warning: cell %d:%d: %v\n", rowIdx, colIdx, err)
					failed++
					continue
				}

				out[rowIdx][colIdx] = res.Text
				processed++
				if res.Failed > 0 {
					failed++
				}
			}
			fmt.Fprintf(os.Stderr, "Row %d/%d done\n", rowIdx+1, len(records))
		}

		if err := writeCSV(batchOutputFile, out); err != nil {
			return err
		}
		fmt.Printf("Processed %d cells (%d skipped, %d with errors) into %s\n", processed, skipped, failed, batchOutputFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)

	f := batchCmd.Flags()
	f.StringVarP(&batchAction, "action", "a", "translate", "Action to apply to each cell")
	f.StringVarP(&batchInputFile, "input", "i", "", "Input CSV file")
	f.StringVarP(&batchOutputFile, "output", "o", "", "Output CSV file")
	f.StringVar(&batchTargetLang, "target", "", "Target language for translate (default English)")
	f.IntSliceVarP(&batchColumns, "column", "l", nil, "Column to process, 0-indexed (repeatable)")
	f.BoolVar(&batchHeader, "header", false, "Copy the first row unchanged")
	f.Int("min-length", 0, "Minimum cell length in characters")
	f.Bool("refine", false, "Enable the per-part cleanup pass")

	_ = batchCmd.MarkFlagRequired("input")
	_ = batchCmd.MarkFlagRequired("output")
}

func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output CSV: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return f.Close()
}
