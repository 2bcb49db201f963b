package detector

import (
	"context"
	"net"
	"net/rpc"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const templateHeader = "template<int N> class Foo {};\n#include <vector>\n"

func newTestResolver(t *testing.T, opts Options) *HeaderResolver {
	t.Helper()
	if opts.Filter.Suffixes == nil {
		opts.Filter = DefaultEligibilityFilter()
	}
	return NewHeaderResolver(t.Context(), referenceTable(t), nil, opts, nil)
}

func TestNewHeaderResolverDefaults(t *testing.T) {
	hr := newTestResolver(t, Options{})

	assert.Nil(t, hr.Cache, "caching is off without a TTL")
	assert.Equal(t, 100, cap(hr.Queue))
	assert.Equal(t, 5, hr.QueueSize)
	assert.NotNil(t, hr.Classifier)
	assert.NotNil(t, hr.DomainLogger)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name            string
		doc             Document
		expectedOK      bool
		expectedChanged bool
		expectedTo      Language
	}{
		{
			name:            "C header with template code",
			doc:             Document{Path: "include/foo.h", Language: LanguageC, Text: templateHeader},
			expectedOK:      true,
			expectedChanged: true,
			expectedTo:      LanguageCPP,
		},
		{
			name:            "Already the detected language",
			doc:             Document{Path: "include/foo.h", Language: LanguageCPP, Text: templateHeader},
			expectedOK:      true,
			expectedChanged: false,
			expectedTo:      LanguageCPP,
		},
		{
			name:            "No evidence keeps the current language",
			doc:             Document{Path: "include/foo.h", Language: LanguageC, Text: "int x;\n"},
			expectedOK:      true,
			expectedChanged: false,
			expectedTo:      LanguageC,
		},
		{
			name:            "Extensionless header",
			doc:             Document{Path: "include/vector", Language: LanguageUnknown, Text: templateHeader},
			expectedOK:      true,
			expectedChanged: true,
			expectedTo:      LanguageCPP,
		},
		{
			name:       "Source file is not a candidate",
			doc:        Document{Path: "src/foo.m", Language: LanguageObjC, Text: templateHeader},
			expectedOK: false,
		},
	}

	hr := newTestResolver(t, Options{Source: "test"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := hr.Resolve(tt.doc)
			require.Equal(t, tt.expectedOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.expectedChanged, res.Changed)
			assert.Equal(t, tt.doc.Language, res.From)
			assert.Equal(t, tt.expectedTo, res.To)
			assert.Equal(t, "test", res.Source)
			assert.NotEmpty(t, res.ID)
			assert.False(t, res.ResolvedAt.IsZero())

			doc := tt.doc
			assert.Equal(t, tt.expectedChanged, doc.Apply(res))
			assert.Equal(t, tt.expectedTo, doc.Language)
		})
	}
}

func TestResolveTextTruncates(t *testing.T) {
	text := "int x;\n" + templateHeader
	hr := newTestResolver(t, Options{MaxTextBytes: len("int x;\n")})

	res := hr.ResolveText(Document{Path: "foo.h", Language: LanguageC, Text: text})
	assert.False(t, res.Changed, "evidence past the limit is not read")

	hr.MaxTextBytes = 0
	res = hr.ResolveText(Document{Path: "foo.h", Language: LanguageC, Text: text})
	assert.True(t, res.Changed)
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		limit    int
		expected string
	}{
		{name: "no limit", text: "héllo", limit: 0, expected: "héllo"},
		{name: "under limit", text: "abc", limit: 10, expected: "abc"},
		{name: "ascii cut", text: "abcdef", limit: 3, expected: "abc"},
		{name: "cut inside two byte rune", text: "aé", limit: 2, expected: "a"},
		{name: "cut after two byte rune", text: "aéb", limit: 3, expected: "aé"},
		{name: "cut inside four byte rune", text: "x🙂y", limit: 4, expected: "x"},
		{name: "rune at start longer than limit", text: "🙂", limit: 2, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateText(tt.text, tt.limit)
			assert.Equal(t, tt.expected, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

type recordingResolverLogger struct {
	discardLogger
	mu     sync.Mutex
	hits   int
	misses int
	sent   []int
	failed int
}

func (l *recordingResolverLogger) CacheHit(string, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits++
}

func (l *recordingResolverLogger) CacheMiss(string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.misses++
}

func (l *recordingResolverLogger) RPCBatchSent(count int, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, count)
}

func (l *recordingResolverLogger) RPCBatchFailed(int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed++
}

func TestResolveUsesCache(t *testing.T) {
	rec := &recordingResolverLogger{}
	hr := NewHeaderResolver(t.Context(), referenceTable(t), nil, Options{
		Filter:   DefaultEligibilityFilter(),
		CacheTTL: time.Hour,
	}, rec)

	first := hr.ResolveText(Document{Path: "a.h", Language: LanguageC, Text: templateHeader})
	second := hr.ResolveText(Document{Path: "b.h", Language: LanguageC, Text: templateHeader})

	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, first.To, second.To)
	assert.Equal(t, first.Scores, second.Scores)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "foo.h")
	require.NoError(t, os.WriteFile(header, []byte(templateHeader), 0o644))
	source := filepath.Join(dir, "foo.c")
	require.NoError(t, os.WriteFile(source, []byte(templateHeader), 0o644))

	hr := newTestResolver(t, Options{})

	res, ok, err := hr.ResolveFile(header, LanguageUnknown)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, LanguageC, res.From, "a .h file opens as C")
	assert.Equal(t, LanguageCPP, res.To)

	res, ok, err = hr.ResolveFile(header, LanguageObjCPP)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, LanguageObjCPP, res.From)
	assert.Equal(t, LanguageCPP, res.To)

	_, ok, err = hr.ResolveFile(source, LanguageUnknown)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = hr.ResolveFile(filepath.Join(dir, "missing.h"), LanguageUnknown)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnqueueDoesNotBlock(t *testing.T) {
	hr := newTestResolver(t, Options{QueueCapacity: 1})

	assert.True(t, hr.Enqueue(Resolution{Path: "a.h"}))
	assert.False(t, hr.Enqueue(Resolution{Path: "b.h"}), "a full queue drops the resolution")
}

type pushReceiver struct {
	mu      sync.Mutex
	batches [][]Resolution
}

func (p *pushReceiver) PushResolutions(results []Resolution, reply *string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, results)
	*reply = "ok"
	return nil
}

func startPushServer(t *testing.T) (string, *pushReceiver) {
	t.Helper()
	receiver := &pushReceiver{}
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("ResolverService", receiver))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go server.ServeConn(conn)
		}
	}()
	return listener.Addr().String(), receiver
}

func TestSendBatch(t *testing.T) {
	addr, receiver := startPushServer(t)
	rec := &recordingResolverLogger{}
	hr := NewHeaderResolver(t.Context(), referenceTable(t), nil, Options{ServerAddr: addr}, rec)
	t.Cleanup(func() {
		if hr.RpcClient != nil {
			hr.RpcClient.Close()
		}
	})

	res := hr.ResolveText(Document{Path: "foo.h", Language: LanguageC, Text: templateHeader})
	hr.SendBatch(t.Context(), []Resolution{res})
	hr.SendBatch(t.Context(), nil)

	receiver.mu.Lock()
	defer receiver.mu.Unlock()
	require.Len(t, receiver.batches, 1)
	require.Len(t, receiver.batches[0], 1)
	assert.Equal(t, res.ID, receiver.batches[0][0].ID)
	assert.Equal(t, LanguageCPP, receiver.batches[0][0].To)
	assert.Equal(t, []int{1}, rec.sent)
}

func TestSendBatchGivesUpWhenContextDone(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	rec := &recordingResolverLogger{}
	hr := NewHeaderResolver(t.Context(), referenceTable(t), nil, Options{ServerAddr: addr}, rec)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	hr.SendBatch(ctx, []Resolution{{Path: "foo.h"}})

	assert.Equal(t, 1, rec.failed)
	assert.Nil(t, hr.RpcClient)
}
