package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kloudmate/header-resolver/detector"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every header-resolver collector.
	Registry = prometheus.NewRegistry()

	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "header_resolutions_total",
			Help: "Header documents resolved, by verdict language and whether the language changed",
		},
		[]string{"language", "changed"},
	)
	ruleMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "header_rule_matches_total",
			Help: "Rule matches observed across resolutions",
		},
		[]string{"rule"},
	)
	RuleTableRules = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rule_table_rules",
		Help: "Number of rules in the active rule table",
	})
	RuleTableInert = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rule_table_inert_rules",
		Help: "Number of rules disabled because their record was invalid",
	})

	initOnce sync.Once
)

// Init registers all collectors with Registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		Registry.MustRegister(
			collectors.NewGoCollector(),
			httpReqs, httpDur,
			resolutions, ruleMatches,
			RuleTableRules, RuleTableInert,
		)
	})
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRuleTable records the size and health of a freshly built table.
func ObserveRuleTable(table *detector.RuleTable) {
	RuleTableRules.Set(float64(table.Len()))
	RuleTableInert.Set(float64(len(table.Diagnostics())))
}

// ObserveResolution records one resolution.
func ObserveResolution(res detector.Resolution) {
	changed := "false"
	if res.Changed {
		changed = "true"
	}
	resolutions.WithLabelValues(string(res.To), changed).Inc()
	for _, rule := range res.Matched {
		ruleMatches.WithLabelValues(rule).Inc()
	}
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		// the route pattern is only complete once chi has routed the request
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
