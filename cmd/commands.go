package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kloudmate/header-resolver/detector"
	resolverRpc "github.com/kloudmate/header-resolver/rpc"
	"github.com/kloudmate/header-resolver/workload"
)

// errInertRules makes `rules check` exit non-zero.
var errInertRules = errors.New("rule table has inert rules")

func newClassifyCommand(a *app) *cobra.Command {
	var current string
	var force bool

	cmd := &cobra.Command{
		Use:   "classify FILE...",
		Short: "Resolve the language of individual header files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang := detector.LanguageUnknown
			if current != "" {
				parsed, err := detector.ParseLanguage(current)
				if err != nil {
					return err
				}
				lang = parsed
			}

			resolver := a.newResolver(cmd.Context(), "cli")
			for _, path := range args {
				var res detector.Resolution
				if force {
					data, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("failed to read %s: %w", path, err)
					}
					docLang := lang
					if docLang == detector.LanguageUnknown {
						docLang = detector.DefaultLanguageFor(path)
					}
					res = resolver.ResolveText(detector.Document{Path: path, Language: docLang, Text: string(data)})
				} else {
					var ok bool
					var err error
					res, ok, err = resolver.ResolveFile(path, lang)
					if err != nil {
						return err
					}
					if !ok {
						log.Warn("skipped, not a header candidate", "path", path)
						continue
					}
				}
				a.report(res)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "language the file is currently assigned (default: from extension)")
	cmd.Flags().BoolVar(&force, "force", false, "classify even files the eligibility filter rejects")
	return cmd
}

func newScanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan DIR",
		Short: "Resolve every header candidate under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			resolver := a.newResolver(ctx, "workspace")

			results, err := workload.AnalyzeWorkspace(ctx, args[0], resolver, a.cfg.Workers, a.domainLogger)
			if err != nil {
				return err
			}
			for _, res := range results {
				a.report(res)
			}
			if a.cfg.RPCAddr != "" && len(results) > 0 {
				a.domainLogger.RPCBatchSending(len(results), "scan_completed")
				resolver.SendBatch(ctx, results)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&a.cfg.Workers, "workers", a.cfg.Workers, "files resolved in parallel (0 = GOMAXPROCS)")
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch DIR",
		Short: "Resolve headers as they are opened, created or rewritten",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			var wg sync.WaitGroup

			resolver := a.newResolver(ctx, "watch")
			if a.cfg.RPCAddr != "" {
				wg.Add(1)
				go resolverRpc.SendDataToUpdater(ctx, &wg, resolver, a.domainLogger, flushInterval)
			} else {
				// nothing drains the queue without an updater
				resolver.Queue = nil
			}

			var mu sync.Mutex
			emit := func(kind string, res detector.Resolution) {
				mu.Lock()
				defer mu.Unlock()
				log.Debug("document event", "kind", kind, "path", res.Path)
				a.report(res)
			}
			if err := workload.WatchWorkspace(ctx, &wg, args[0], resolver, a.domainLogger, emit); err != nil {
				return err
			}

			a.domainLogger.ApplicationReady()
			<-ctx.Done()
			a.domainLogger.ApplicationShuttingDown("interrupt")
			wg.Wait()
			a.domainLogger.ApplicationShutdownComplete()
			return nil
		},
	}
}

func newImageCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "image REF",
		Short: "Resolve header candidates inside a container image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			resolver := a.newResolver(ctx, "image")

			results, err := resolver.ScanImage(ctx, args[0], a.domainLogger)
			if err != nil {
				return err
			}
			for _, res := range results {
				a.report(res)
			}
			if a.cfg.RPCAddr != "" && len(results) > 0 {
				a.domainLogger.RPCBatchSending(len(results), "image_scan_completed")
				resolver.SendBatch(ctx, results)
			}
			return nil
		},
	}
}

func newRulesCommand(a *app) *cobra.Command {
	list := func(_ *cobra.Command, _ []string) error {
		for i, rule := range a.table.Rules() {
			state := "active"
			if rule.Inert() {
				state = "inert"
			}
			fmt.Printf("%2d  %-22s %-6s %.2f  %v  %s\n", i, rule.Name, state, rule.Weight, rule.Languages, rule.Pattern)
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the active rule table",
		RunE:  list,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every rule with its weight, languages and pattern",
			RunE:  list,
		},
		&cobra.Command{
			Use:   "check",
			Short: "Report inert rules; exits non-zero when any exist",
			RunE: func(_ *cobra.Command, _ []string) error {
				diagnostics := a.table.Diagnostics()
				for _, d := range diagnostics {
					log.Error("inert rule", "index", d.Index, "name", d.Name, "pattern", d.Pattern, "err", d.Err)
				}
				if len(diagnostics) > 0 {
					return fmt.Errorf("%w: %d of %d", errInertRules, len(diagnostics), a.table.Len())
				}
				log.Info("all rules compiled", "rules", a.table.Len())
				return nil
			},
		},
	)
	return cmd
}

// report prints one resolution for a human or as a JSON line.
func (a *app) report(res detector.Resolution) {
	if a.jsonOutput {
		_ = json.NewEncoder(os.Stdout).Encode(res)
		return
	}
	if res.Changed {
		log.Info("resolved", "path", res.Path, "from", res.From, "to", res.To, "average", fmt.Sprintf("%.3f", res.Average))
		return
	}
	log.Info("unchanged", "path", res.Path, "language", res.From)
}
