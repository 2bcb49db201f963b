package logger

import (
	"fmt"

	"github.com/kloudmate/header-resolver/detector"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DomainLogger wraps zap logger with enterprise-grade structured logging
type DomainLogger struct {
	*zap.Logger
}

// NewProductionLogger creates a production-ready logger with enterprise formatting
func NewProductionLogger() (*DomainLogger, error) {
	return NewLogger("info")
}

// NewLogger creates a production-formatted logger at the given level
// (debug, info, warn, error).
func NewLogger(level string) (*DomainLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.LevelKey = "severity"
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &DomainLogger{Logger: logger}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *DomainLogger {
	return &DomainLogger{Logger: zap.NewNop()}
}

// New wraps an existing zap logger.
func New(l *zap.Logger) *DomainLogger {
	return &DomainLogger{Logger: l}
}

// Rule Table Domain Events
func (l *DomainLogger) RuleCompileFailed(index int, name, pattern string, err error) {
	l.Warn("Rule disabled, it will never match",
		zap.String("event", "rule.compile_failed"),
		zap.Int("rule_index", index),
		zap.String("rule", name),
		zap.String("pattern", pattern),
		zap.Error(err),
	)
}

func (l *DomainLogger) RuleTableBuilt(source string, rules, inert int) {
	l.Info("Rule table built",
		zap.String("event", "rule.table_built"),
		zap.String("source", source),
		zap.Int("rules", rules),
		zap.Int("inert_rules", inert),
	)
}

func (l *DomainLogger) RuleTableLoadFailed(source string, err error) {
	l.Error("Failed to load rule table",
		zap.String("event", "rule.table_load_failed"),
		zap.String("source", source),
		zap.Error(err),
	)
}

// Classification Domain Events
func (l *DomainLogger) RuleEvaluated(name, pattern string, matched bool) {
	if ce := l.Check(zapcore.DebugLevel, "Rule evaluated"); ce != nil {
		ce.Write(
			zap.String("event", "rule.evaluated"),
			zap.String("rule", name),
			zap.String("pattern", pattern),
			zap.Bool("matched", matched),
		)
	}
}

func (l *DomainLogger) ClassificationSummary(scores map[detector.Language]detector.Score, verdict detector.Language) {
	ce := l.Check(zapcore.DebugLevel, "Detection summary")
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, len(detector.Languages)+2)
	fields = append(fields, zap.String("event", "classification.summary"))
	for _, lang := range detector.Languages {
		fields = append(fields, zap.Object(string(lang), scoreMarshaler(scores[lang])))
	}
	fields = append(fields, zap.String("verdict", string(verdict)))
	ce.Write(fields...)
}

type scoreMarshaler detector.Score

func (s scoreMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddFloat64("value", s.Value)
	enc.AddInt("total", s.Total)
	if avg, ok := detector.Score(s).Average(); ok {
		enc.AddFloat64("percent", avg*100)
	} else {
		enc.AddString("percent", "n/a")
	}
	return nil
}

// Resolution Domain Events
func (l *DomainLogger) ResolutionApplied(path, from, to string, average float64) {
	l.Info("Document language reassigned",
		zap.String("event", "resolution.applied"),
		zap.String("path", path),
		zap.String("from", from),
		zap.String("to", to),
		zap.Float64("average", average),
	)
}

func (l *DomainLogger) ResolutionUnchanged(path, current string) {
	l.Debug("Document language kept",
		zap.String("event", "resolution.unchanged"),
		zap.String("path", path),
		zap.String("language", current),
	)
}

func (l *DomainLogger) DocumentSkipped(path, reason string) {
	l.Debug("Document is not a header candidate",
		zap.String("event", "resolution.skipped"),
		zap.String("path", path),
		zap.String("reason", reason),
	)
}

func (l *DomainLogger) DocumentReadFailed(path string, err error) {
	l.Warn("Failed to read document",
		zap.String("event", "resolution.read_failed"),
		zap.String("path", path),
		zap.Error(err),
	)
}

// Cache Domain Events
func (l *DomainLogger) CacheHit(path, language string) {
	l.Debug("Cache hit - using cached verdict",
		zap.String("event", "cache.hit"),
		zap.String("path", path),
		zap.String("language", language),
	)
}

func (l *DomainLogger) CacheMiss(path string) {
	l.Debug("Cache miss - classifying document",
		zap.String("event", "cache.miss"),
		zap.String("path", path),
	)
}

func (l *DomainLogger) CacheStored(path, language string) {
	l.Debug("Verdict cached",
		zap.String("event", "cache.stored"),
		zap.String("path", path),
		zap.String("language", language),
	)
}

// RPC Domain Events
func (l *DomainLogger) RPCConnectionInitiated(address string) {
	l.Info("Attempting RPC connection",
		zap.String("event", "rpc.connection.initiated"),
		zap.String("server_address", address),
	)
}

func (l *DomainLogger) RPCConnectionEstablished(address string) {
	l.Info("RPC connection established successfully",
		zap.String("event", "rpc.connection.established"),
		zap.String("server_address", address),
	)
}

func (l *DomainLogger) RPCConnectionFailed(address string, err error) {
	l.Warn("RPC connection failed, will retry",
		zap.String("event", "rpc.connection.failed"),
		zap.String("server_address", address),
		zap.Error(err),
	)
}

func (l *DomainLogger) RPCBatchQueued(batchSize, queueSize int) {
	l.Debug("Resolutions queued for transmission",
		zap.String("event", "rpc.batch.queued"),
		zap.Int("current_batch_size", batchSize),
		zap.Int("max_queue_size", queueSize),
	)
}

func (l *DomainLogger) RPCBatchSending(count int, reason string) {
	l.Info("Transmitting resolutions to updater",
		zap.String("event", "rpc.batch.sending"),
		zap.Int("result_count", count),
		zap.String("trigger_reason", reason),
	)
}

func (l *DomainLogger) RPCBatchSent(count int, response string) {
	l.Info("Resolutions transmitted successfully",
		zap.String("event", "rpc.batch.sent"),
		zap.Int("result_count", count),
		zap.String("server_response", response),
	)
}

func (l *DomainLogger) RPCBatchFailed(count int, err error) {
	l.Error("Failed to transmit resolutions",
		zap.String("event", "rpc.batch.failed"),
		zap.Int("result_count", count),
		zap.Error(err),
	)
}

func (l *DomainLogger) RPCBatchReceived(count int) {
	l.Info("Received a batch of resolutions",
		zap.String("event", "rpc.batch.received"),
		zap.Int("result_count", count),
	)
}

// Workspace Domain Events
func (l *DomainLogger) WorkspaceScanStarted(root string) {
	l.Info("Workspace scan started",
		zap.String("event", "workspace.scan.started"),
		zap.String("root", root),
	)
}

func (l *DomainLogger) WorkspaceScanCompleted(root string, scanned, changed int) {
	l.Info("Workspace scan completed",
		zap.String("event", "workspace.scan.completed"),
		zap.String("root", root),
		zap.Int("documents_scanned", scanned),
		zap.Int("documents_changed", changed),
	)
}

func (l *DomainLogger) WatchStarted(root string) {
	l.Info("Watching workspace for document events",
		zap.String("event", "watch.started"),
		zap.String("root", root),
	)
}

func (l *DomainLogger) WatchStopped(root string) {
	l.Info("Workspace watch stopped",
		zap.String("event", "watch.stopped"),
		zap.String("root", root),
	)
}

func (l *DomainLogger) DocumentEvent(kind, path string) {
	l.Debug("Document event",
		zap.String("event", "watch.document"),
		zap.String("kind", kind),
		zap.String("path", path),
	)
}

func (l *DomainLogger) WatchError(root string, err error) {
	l.Warn("Workspace watcher error",
		zap.String("event", "watch.error"),
		zap.String("root", root),
		zap.Error(err),
	)
}

// Image Domain Events
func (l *DomainLogger) ImageScanStarted(image string) {
	l.Info("Image header scan initiated",
		zap.String("event", "image.scan.started"),
		zap.String("image", image),
	)
}

func (l *DomainLogger) ImageScanCompleted(image string, scanned, changed int) {
	l.Info("Image header scan completed",
		zap.String("event", "image.scan.completed"),
		zap.String("image", image),
		zap.Int("headers_scanned", scanned),
		zap.Int("headers_changed", changed),
	)
}

// Application Lifecycle Events
func (l *DomainLogger) ApplicationStarting(version, commit string) {
	l.Info("Header resolver starting",
		zap.String("event", "application.starting"),
		zap.String("version", version),
		zap.String("commit", commit),
	)
}

func (l *DomainLogger) ApplicationReady() {
	l.Info("Header resolver ready to classify documents",
		zap.String("event", "application.ready"),
	)
}

func (l *DomainLogger) ApplicationShuttingDown(signal string) {
	l.Info("Graceful shutdown initiated",
		zap.String("event", "application.shutdown.initiated"),
		zap.String("signal", signal),
	)
}

func (l *DomainLogger) ApplicationShutdownComplete() {
	l.Info("Graceful shutdown completed",
		zap.String("event", "application.shutdown.completed"),
	)
}

// Kubernetes Client Events
func (l *DomainLogger) K8sClientInitialized(mode string) {
	l.Info("Kubernetes client initialized",
		zap.String("event", "kubernetes.client.initialized"),
		zap.String("mode", mode),
	)
}

func (l *DomainLogger) K8sClientInitFailed(err error) {
	l.Error("Failed to initialize Kubernetes client",
		zap.String("event", "kubernetes.client.init_failed"),
		zap.Error(err),
	)
}
