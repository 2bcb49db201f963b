package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kloudmate/header-resolver/detector"
	"github.com/kloudmate/header-resolver/pkg/config"
	"github.com/kloudmate/header-resolver/pkg/logger"
	"github.com/kloudmate/header-resolver/workload"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg          *config.Config
	domainLogger *logger.DomainLogger
	table        *detector.RuleTable
	jsonOutput   bool
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	a.cfg = cfg

	root := &cobra.Command{
		Use:           "header-resolver",
		Short:         "Resolve ambiguous headers between C, C++, Objective-C and Objective-C++",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.RulesSource, "rules", a.cfg.RulesSource, "rule source: file (.yaml/.toml/.json), configmap://ns/name#key or "+detector.ReferenceSource)
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "structured log level (debug shows per-rule evaluation)")
	flags.StringSliceVar(&a.cfg.HeaderSuffixes, "suffix", a.cfg.HeaderSuffixes, "header suffixes; files without extension always qualify")
	flags.StringSliceVar(&a.cfg.ExcludeGlobs, "exclude", a.cfg.ExcludeGlobs, "doublestar globs of paths to skip")
	flags.IntVar(&a.cfg.MaxFileBytes, "max-bytes", a.cfg.MaxFileBytes, "classify at most this many leading bytes of a file (0 = all)")
	flags.StringVar(&a.cfg.RPCAddr, "rpc-addr", a.cfg.RPCAddr, "push resolutions to this updater address")
	flags.BoolVar(&a.jsonOutput, "json", false, "print resolutions as JSON lines")

	root.AddCommand(
		newClassifyCommand(a),
		newScanCommand(a),
		newWatchCommand(a),
		newImageCommand(a),
		newRulesCommand(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	domainLogger, err := logger.NewLogger(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.domainLogger = domainLogger
	a.domainLogger.ApplicationStarting(version, commit)

	table, err := workload.BuildRuleTable(ctx, a.cfg.RulesSource, a.domainLogger)
	if err != nil {
		return fmt.Errorf("loading rules from %s: %w", a.cfg.RulesSource, err)
	}
	a.table = table
	return nil
}

func (a *app) teardown() {
	a.table.Release()
	if a.domainLogger != nil {
		_ = a.domainLogger.Sync()
	}
}

func (a *app) newResolver(ctx context.Context, source string) *detector.HeaderResolver {
	return detector.NewHeaderResolver(ctx, a.table, detector.NewClassifier(a.domainLogger), a.cfg.ResolverOptions(source), a.domainLogger)
}

// flushInterval bounds how long a resolution waits in the push queue.
const flushInterval = 10 * time.Second
