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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/studyspark/internal/config"
	"github.com/valpere/studyspark/internal/logger"
)

var version = "0.3.0"

var (
	cfgFile string
	envFile string

	// cfg is loaded before every command runs.
	cfg *config.Config
)

// flagKeys maps flag names to the config keys they override. Only flags set
// on the command line are bound so config defaults keep their precedence.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-json":      "log.json",
	"provider":      "provider.name",
	"base-url":      "provider.base_url",
	"model":         "provider.model",
	"api-key":       "provider.api_key",
	"db":            "store.path",
	"timeout":       "pipeline.timeout",
	"refine":        "pipeline.refine",
	"chunk-size":    "pipeline.chunk_size",
	"min-length":    "pipeline.min_length",
	"auto-download": "pipeline.auto_download",
	"context-words": "pipeline.context_words",
	"validate":      "pipeline.validate_language",
	"prompts":       "prompts",
	"addr":          "server.addr",
}

var rootCmd = &cobra.Command{
	Use:   "studyspark",
	Short: "Summarize, simplify, translate and more with a language model",
	Long: `A CLI application that processes page text with a language model.

Long text is split into chunks, each chunk is processed in order, repeated
content is removed, and the results are merged into one document.

Actions: summarize, simplify, translate, proofread, flashcards, template

Use "studyspark run --help" for processing options.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.studyspark.yaml)")
	pf.StringVar(&envFile, "env-file", "", "Environment file to load (default ./.env)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error, disabled")
	pf.Bool("log-json", false, "Log in JSON format")
	pf.String("provider", "ollama", "Completion provider: ollama or openrouter")
	pf.String("base-url", "", "Provider base URL")
	pf.String("model", "", "Model name")
	pf.String("api-key", "", "Provider API key")
	pf.String("db", "", "SQLite database path (default $HOME/.studyspark/studyspark.db)")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}

	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	cfg, err = config.Load(v)
	if err != nil {
		return err
	}

	logger.SetDefault(logger.NewLogger(cfg.LoggerConfig()))
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}
