// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

// Package main is the routerctl operator CLI: offline inspection of a
// routing configuration without dispatching anything.
//
// Usage:
//
//	routerctl validate --config routing.yaml
//	routerctl analyze "implement a rate limiter"
//	routerctl rank --config routing.yaml "implement a rate limiter"
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klappe-pm/-lattice-lock-framework-sub006/orchestrator/routing"
	"github.com/klappe-pm/-lattice-lock-framework-sub006/shared/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "routerctl",
		Short: "Inspect model-routing configuration and selection",
	}

	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(rankCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func validateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a routing configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cat, err := f.Catalog()
			if err != nil {
				return err
			}
			if _, err := f.RouterOptions(); err != nil {
				return err
			}

			fmt.Printf("OK: %d models, %d providers\n", cat.Len(), len(cat.Providers()))
			for _, p := range cat.All() {
				local := ""
				if p.Local {
					local = " (local)"
				}
				fmt.Printf("  %-40s %-12s ctx=%d%s\n", p.Ref, p.Maturity, p.ContextWindow, local)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "routing.yaml", "Path to the routing configuration")
	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <prompt>",
		Short: "Show how a prompt is classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer, err := routing.NewAnalyzer(routing.DefaultAnalyzerConfig())
			if err != nil {
				return err
			}

			req := analyzer.Analyze(strings.Join(args, " "), nil)
			out, err := json.MarshalIndent(req, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func rankCmd() *cobra.Command {
	var configPath string
	var priority string

	cmd := &cobra.Command{
		Use:   "rank <prompt>",
		Short: "Rank catalog models for a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cat, err := f.Catalog()
			if err != nil {
				return err
			}

			analyzer, err := routing.NewAnalyzer(routing.DefaultAnalyzerConfig())
			if err != nil {
				return err
			}
			req := analyzer.Analyze(strings.Join(args, " "), nil)
			if priority != "" {
				mode, err := routing.ParsePriorityMode(priority)
				if err != nil {
					return err
				}
				req.Priority = mode
			}

			selector := routing.NewSelector(routing.NewCatalogHandle(cat), routing.SelectorConfig{
				Scorer: routing.DefaultScorerConfig(),
			}, nil, nil)
			ranked, rejected := selector.Evaluate(req)

			fmt.Printf("Task: %s (complexity %.2f, min context %d)\n\n", req.Primary, req.Complexity, req.MinContextTokens)
			for i, cs := range ranked {
				fmt.Printf("%2d. %-40s score %.3f\n", i+1, cs.Profile.Ref, cs.Score)
			}
			if len(rejected) > 0 {
				fmt.Println("\nDisqualified:")
				for _, cs := range rejected {
					fmt.Printf("    %-40s %s\n", cs.Profile.Ref, cs.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "routing.yaml", "Path to the routing configuration")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority mode (quality, speed, cost, balanced)")
	return cmd
}
