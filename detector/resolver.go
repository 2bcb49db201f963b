package detector

import (
	"context"
	"fmt"
	"net/rpc"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PushMethod is the RPC method resolutions are delivered to.
const PushMethod = "ResolverService.PushResolutions"

// Document is the host's view of an open file.
type Document struct {
	Path     string
	Language Language
	Text     string
}

// Apply reassigns the document language when res carries a different one.
// It reports whether the language changed.
func (d *Document) Apply(res Resolution) bool {
	if !res.Changed || res.To == d.Language {
		return false
	}
	d.Language = res.To
	return true
}

// Resolution records the outcome of resolving one document.
type Resolution struct {
	ID         string             `json:"id"`
	Path       string             `json:"path"`
	Source     string             `json:"source,omitempty"`
	From       Language           `json:"from"`
	To         Language           `json:"to"`
	Changed    bool               `json:"changed"`
	Average    float64            `json:"average"`
	Scores     map[Language]Score `json:"scores,omitempty"`
	Matched    []string           `json:"matched,omitempty"`
	ResolvedAt time.Time          `json:"resolvedAt"`
}

// ResolverLogger is the subset of domain events the resolver emits.
type ResolverLogger interface {
	ResolutionApplied(path, from, to string, average float64)
	ResolutionUnchanged(path, current string)
	DocumentSkipped(path, reason string)
	CacheHit(path, language string)
	CacheMiss(path string)
	CacheStored(path, language string)
	RPCConnectionInitiated(address string)
	RPCConnectionEstablished(address string)
	RPCConnectionFailed(address string, err error)
	RPCBatchSent(count int, response string)
	RPCBatchFailed(count int, err error)
}

// Options tunes a HeaderResolver.
type Options struct {
	Filter        EligibilityFilter
	CacheTTL      time.Duration // zero disables caching
	MaxTextBytes  int           // zero means unlimited
	ServerAddr    string
	QueueCapacity int
	BatchSize     int
	Source        string
}

// HeaderResolver applies classifier verdicts to documents on behalf of a host.
type HeaderResolver struct {
	Table        *RuleTable
	Classifier   *Classifier
	Filter       EligibilityFilter
	Cache        *VerdictCache
	MaxTextBytes int
	Source       string
	RpcClient    *rpc.Client
	ServerAddr   string
	DomainLogger ResolverLogger
	Queue        chan Resolution
	QueueSize    int
	BatchMutex   sync.Mutex
}

// NewHeaderResolver creates a resolver over a built table. ctx bounds the
// lifetime of the verdict cache's background sweeper.
func NewHeaderResolver(ctx context.Context, table *RuleTable, classifier *Classifier, opts Options, domainLogger ResolverLogger) *HeaderResolver {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 100
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if classifier == nil {
		classifier = &Classifier{}
	}
	if domainLogger == nil {
		domainLogger = discardLogger{}
	}

	var cache *VerdictCache
	if opts.CacheTTL > 0 {
		cache = NewVerdictCache(ctx, opts.CacheTTL)
	}

	return &HeaderResolver{
		Table:        table,
		Classifier:   classifier,
		Filter:       opts.Filter,
		Cache:        cache,
		MaxTextBytes: opts.MaxTextBytes,
		Source:       opts.Source,
		ServerAddr:   opts.ServerAddr,
		DomainLogger: domainLogger,
		Queue:        make(chan Resolution, opts.QueueCapacity),
		QueueSize:    opts.BatchSize,
	}
}

// Resolve classifies doc if it is a header candidate. ok is false when the
// filter rejected the document and nothing was classified.
func (hr *HeaderResolver) Resolve(doc Document) (res Resolution, ok bool) {
	if !hr.Filter.Eligible(doc.Path) {
		hr.DomainLogger.DocumentSkipped(doc.Path, "not a header candidate")
		return Resolution{}, false
	}
	return hr.ResolveText(doc), true
}

// ResolveText classifies doc without consulting the eligibility filter.
func (hr *HeaderResolver) ResolveText(doc Document) Resolution {
	text := truncateText(doc.Text, hr.MaxTextBytes)
	verdict := hr.classify(doc.Path, text)

	res := Resolution{
		ID:         uuid.NewString(),
		Path:       doc.Path,
		Source:     hr.Source,
		From:       doc.Language,
		To:         doc.Language,
		Average:    verdict.Average,
		Scores:     verdict.Scores,
		Matched:    verdict.Matched,
		ResolvedAt: time.Now().UTC(),
	}
	if !verdict.NoChange() && verdict.Language != doc.Language {
		res.To = verdict.Language
		res.Changed = true
	}

	if res.Changed {
		hr.DomainLogger.ResolutionApplied(res.Path, string(res.From), string(res.To), res.Average)
	} else {
		hr.DomainLogger.ResolutionUnchanged(res.Path, string(res.From))
	}
	return res
}

// truncateText cuts text to at most limit bytes without splitting a UTF-8
// sequence. A limit of zero or less keeps everything.
func truncateText(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// ResolveFile reads path from disk and resolves it. current is the language
// the host already assigned; LanguageUnknown falls back to DefaultLanguageFor.
func (hr *HeaderResolver) ResolveFile(path string, current Language) (Resolution, bool, error) {
	if !hr.Filter.Eligible(path) {
		hr.DomainLogger.DocumentSkipped(path, "not a header candidate")
		return Resolution{}, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Resolution{}, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if current == "" || current == LanguageUnknown {
		current = DefaultLanguageFor(path)
	}
	return hr.ResolveText(Document{Path: path, Language: current, Text: string(data)}), true, nil
}

func (hr *HeaderResolver) classify(path, text string) Verdict {
	if verdict, ok := hr.Cache.Get(text, hr.Table); ok {
		hr.DomainLogger.CacheHit(path, string(verdict.Language))
		return verdict
	}
	if hr.Cache != nil {
		hr.DomainLogger.CacheMiss(path)
	}

	verdict := hr.Classifier.Classify(text, hr.Table)

	if hr.Cache != nil {
		hr.Cache.Set(text, hr.Table, verdict)
		hr.DomainLogger.CacheStored(path, string(verdict.Language))
	}
	return verdict
}

// Enqueue offers res to the push queue without blocking. It reports false
// when the queue is full and the resolution was dropped.
func (hr *HeaderResolver) Enqueue(res Resolution) bool {
	select {
	case hr.Queue <- res:
		return true
	default:
		return false
	}
}

// SendBatch sends a batch of resolutions to the RPC server
func (hr *HeaderResolver) SendBatch(ctx context.Context, batch []Resolution) {
	if len(batch) == 0 {
		return
	}

	var reply string

	// Ensure we have a connection
	if hr.RpcClient == nil {
		if err := hr.DialWithRetry(ctx, time.Second*10); err != nil {
			hr.DomainLogger.RPCBatchFailed(len(batch), err)
			return
		}
	}

	err := hr.RpcClient.Call(PushMethod, batch, &reply)
	if err != nil {
		hr.DomainLogger.RPCBatchFailed(len(batch), err)

		// Connection failed, try to reconnect
		hr.RpcClient.Close()
		hr.RpcClient = nil
		if err := hr.DialWithRetry(ctx, time.Second*10); err != nil {
			hr.DomainLogger.RPCBatchFailed(len(batch), err)
			return
		}

		// Retry sending the batch after reconnection
		err = hr.RpcClient.Call(PushMethod, batch, &reply)
		if err != nil {
			hr.DomainLogger.RPCBatchFailed(len(batch), err)
			return
		}
	}

	hr.DomainLogger.RPCBatchSent(len(batch), reply)
}

type discardLogger struct{}

func (discardLogger) ResolutionApplied(string, string, string, float64) {}
func (discardLogger) ResolutionUnchanged(string, string)                {}
func (discardLogger) DocumentSkipped(string, string)                    {}
func (discardLogger) CacheHit(string, string)                           {}
func (discardLogger) CacheMiss(string)                                  {}
func (discardLogger) CacheStored(string, string)                        {}
func (discardLogger) RPCConnectionInitiated(string)                     {}
func (discardLogger) RPCConnectionEstablished(string)                   {}
func (discardLogger) RPCConnectionFailed(string, error)                 {}
func (discardLogger) RPCBatchSent(int, string)                          {}
func (discardLogger) RPCBatchFailed(int, error)                         {}
