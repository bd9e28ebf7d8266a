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
	"fmt"
	"os"
	"path/filepath"

	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/merger"
	"github.com/valpere/studyspark/internal/metrics"
	"github.com/valpere/studyspark/internal/orchestrator"
	"github.com/valpere/studyspark/internal/pagefetch"
	"github.com/valpere/studyspark/internal/processor"
	"github.com/valpere/studyspark/internal/prompt"
	"github.com/valpere/studyspark/internal/provider"
	"github.com/valpere/studyspark/internal/refiner"
	"github.com/valpere/studyspark/internal/store"
	"github.com/valpere/studyspark/internal/validator"
)

// pipeline is everything a run needs, built from the loaded config.
type pipeline struct {
	service completion.Service
	orch    *orchestrator.Orchestrator
	fetcher *pagefetch.Fetcher
	db      *store.Store
}

type pipelineOptions struct {
	history bool
	cache   bool
	metrics *metrics.Metrics
}

func buildPipeline(opts pipelineOptions) (*pipeline, error) {
	service, err := provider.New(cfg.Provider)
	if err != nil {
		return nil, err
	}

	prompts := prompt.Default()
	if cfg.Prompts != "" {
		if prompts, err = prompt.Load(cfg.Prompts); err != nil {
			return nil, err
		}
	}

	clientOpts := []completion.Option{completion.WithBackoff(cfg.Pipeline.Backoff)}
	if opts.metrics != nil {
		clientOpts = append(clientOpts, completion.WithRecorder(opts.metrics))
	}
	client := completion.NewClient(clientOpts...)

	procOpts := []processor.Option{processor.WithContextWords(cfg.Pipeline.ContextWords)}
	if cfg.Pipeline.ValidateLanguage {
		procOpts = append(procOpts, processor.WithValidator(validator.New()))
	}

	p := &pipeline{
		service: service,
		fetcher: pagefetch.New(cfg.Pipeline.FetchTimeout),
	}

	var orchOpts []orchestrator.Option
	if cfg.Pipeline.Refine {
		orchOpts = append(orchOpts, orchestrator.WithRefiner(refiner.New(client, prompts)))
	}
	if opts.metrics != nil {
		orchOpts = append(orchOpts, orchestrator.WithRecorder(opts.metrics))
	}
	if opts.history || (opts.cache && cfg.Store.Cache) {
		if p.db, err = openStore(); err != nil {
			return nil, err
		}
		if opts.history {
			orchOpts = append(orchOpts, orchestrator.WithHistory(p.db))
		}
		if opts.cache && cfg.Store.Cache {
			orchOpts = append(orchOpts, orchestrator.WithCache(p.db.ResultCache(cfg.Store.FuzzyThreshold)))
		}
	}

	p.orch = orchestrator.New(
		service,
		processor.New(client, prompts, procOpts...),
		merger.New(client, prompts),
		cfg.Orchestrator(),
		orchOpts...,
	)
	return p, nil
}

func (p *pipeline) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
