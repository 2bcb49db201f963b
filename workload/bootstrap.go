package workload

import (
	"context"

	"github.com/kloudmate/header-resolver/detector"
	"github.com/kloudmate/header-resolver/pkg/telemetry"
	"k8s.io/client-go/kubernetes"
)

// TableLogger receives rule table lifecycle events.
type TableLogger interface {
	detector.RuleLogger
	RuleTableBuilt(source string, rules, inert int)
	RuleTableLoadFailed(source string, err error)
	K8sClientInitialized(mode string)
	K8sClientInitFailed(err error)
}

// BuildRuleTable loads rule records from source and builds a table from them.
// Only an unreadable source is an error; invalid records become inert rules.
func BuildRuleTable(ctx context.Context, source string, logger TableLogger) (*detector.RuleTable, error) {
	clients := func() (kubernetes.Interface, error) {
		client, mode, err := GetClientSet()
		if err != nil {
			logger.K8sClientInitFailed(err)
			return nil, err
		}
		logger.K8sClientInitialized(mode)
		return client, nil
	}

	specs, err := detector.LoadRuleSource(ctx, source, clients)
	if err != nil {
		logger.RuleTableLoadFailed(source, err)
		return nil, err
	}

	table := detector.NewRuleTable(specs, logger)
	diagnostics := table.Build()
	logger.RuleTableBuilt(source, table.Len(), len(diagnostics))
	telemetry.ObserveRuleTable(table)
	return table, nil
}
