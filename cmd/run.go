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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/detector"
	"github.com/valpere/studyspark/internal/markdown"
	"github.com/valpere/studyspark/internal/orchestrator"
	"github.com/valpere/studyspark/internal/reveal"
)

var (
	runAction   string
	inputFile   string
	inputText   string
	inputURL    string
	targetLang  string
	pageTitle   string
	outputFile  string
	outputFmt   string
	noCache     bool
	noHistory   bool
	typing      bool
	showPartial bool
)

var runCmd = &cobra.Command{
	Use:   "run [text]",
	Short: "Process text, a file or a web page with one action",
	Long: `Process input with one action and print the merged result.

Input is taken from, in order: --text, the first argument, --url, --input,
or standard input. A URL given as text is fetched and its main content used.

Actions:
  summarize   Key points as a bullet list
  simplify    Plain-language rewrite
  translate   Translation (--target, or "translate to <language>" in the text)
  proofread   Corrected text
  flashcards  Question and answer cards
  template    HTML page template

Press Ctrl-C to cancel a running job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := action.Parse(runAction)
		if err != nil {
			return err
		}
		format, err := markdown.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		if inputFile != "" && inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		input, err := readInput(cmd, args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(pipelineOptions{history: !noHistory, cache: !noCache})
		if err != nil {
			return err
		}
		defer p.Close()

		req, err := orchestrator.Prepare(ctx, p.fetcher, a, input, action.Params{
			TargetLanguage: targetLang,
			Title:          pageTitle,
		})
		if err != nil {
			return err
		}

		if a == action.Translate {
			if lang, ok := detector.New().DetectName(req.Text); ok {
				fmt.Fprintf(os.Stderr, "Detected source language: %s\n", lang)
			}
			fmt.Fprintf(os.Stderr, "Target language: %s\n", req.Params.ResolvedTargetLanguage())
		}

		res, err := p.orch.Execute(ctx, req, progress(os.Stderr))
		if err != nil {
			if errors.Is(err, orchestrator.ErrCancelled) {
				fmt.Fprintln(os.Stderr, "Cancelled")
			}
			return err
		}

		out := markdown.Render(res.Text, format)
		if err := writeOutput(ctx, out); err != nil {
			return err
		}

		switch {
		case res.Cached:
			fmt.Fprintf(os.Stderr, "%s done (from cache)\n", a)
		case res.Failed > 0:
			fmt.Fprintf(os.Stderr, "%s done in %s: %d of %d parts failed\n", a, res.Duration.Round(time.Millisecond), res.Failed, res.Chunks)
		default:
			fmt.Fprintf(os.Stderr, "%s done in %s (%d parts, run %s)\n", a, res.Duration.Round(time.Millisecond), res.Chunks, res.RunID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runAction, "action", "a", "summarize", "Action: summarize, simplify, translate, proofread, flashcards, template")
	f.StringVarP(&inputFile, "input", "i", "", "Input file")
	f.StringVarP(&inputText, "text", "t", "", "Input text")
	f.StringVarP(&inputURL, "url", "u", "", "Web page to process")
	f.StringVar(&targetLang, "target", "", "Target language for translate (default English)")
	f.StringVar(&pageTitle, "title", "", "Page title passed to the prompts")
	f.StringVarP(&outputFile, "output", "o", "", "Output file (default stdout)")
	f.StringVarP(&outputFmt, "format", "f", "markdown", "Output format: markdown, html, text")
	f.BoolVar(&noCache, "no-cache", false, "Skip the result cache")
	f.BoolVar(&noHistory, "no-history", false, "Do not record the run")
	f.BoolVar(&typing, "typing", false, "Reveal stdout output progressively")
	f.BoolVar(&showPartial, "partial", false, "Print per-part results to stderr")

	f.Duration("timeout", 0, "Run timeout (default 30s)")
	f.Bool("refine", false, "Enable the per-part cleanup pass")
	f.Int("chunk-size", 0, "Chunk size in characters (default per action)")
	f.Int("min-length", 0, "Minimum input length in characters")
	f.Bool("auto-download", false, "Download the model when it is not installed")
	f.Int("context-words", 0, "Words of the previous part passed as context")
	f.Bool("validate", false, "Check translated parts are in the target language")
	f.String("prompts", "", "YAML file overriding the built-in prompts")
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case inputText != "":
		return inputText, nil
	case len(args) > 0:
		return args[0], nil
	case inputURL != "":
		return inputURL, nil
	case inputFile != "":
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return "", fmt.Errorf("failed to read input file: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// progress reports run events on w.
func progress(w io.Writer) orchestrator.Handler {
	return func(ev orchestrator.Event) {
		switch ev.Kind {
		case orchestrator.EventChunk:
			fmt.Fprintf(w, "Part %d/%d done\n", ev.Index+1, ev.Total)
			if showPartial {
				fmt.Fprintf(w, "%s\n\n", ev.Text)
			}
		case orchestrator.EventPartial:
			if ev.Index == orchestrator.RunLevel {
				fmt.Fprintf(w, "%s\n\n", ev.Text)
				return
			}
			fmt.Fprintf(w, "Part %d/%d drafted, refining\n", ev.Index+1, ev.Total)
		case orchestrator.EventError:
			// Run-level errors are returned from Execute.
			if ev.Index == orchestrator.RunLevel {
				return
			}
			fmt.Fprintf(w, "Part %d/%d failed: %s\n", ev.Index+1, ev.Total, ev.Message)
		}
	}
}

func writeOutput(ctx context.Context, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	if outputFile == "" {
		if typing {
			_, err := reveal.New(0, 0).Reveal(ctx, os.Stdout, text)
			return err
		}
		_, err := io.WriteString(os.Stdout, text)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", outputFile)
	return nil
}
