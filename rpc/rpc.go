package rpc

import (
	"errors"
	"fmt"
	"net/rpc"

	"github.com/kloudmate/header-resolver/detector"
	"github.com/kloudmate/header-resolver/pkg/telemetry"
)

// ServiceName is the name the resolver service is registered under.
const ServiceName = "ResolverService"

// ErrNotCandidate is returned for documents the eligibility filter rejects.
var ErrNotCandidate = errors.New("document is not a header candidate")

// ClassifyArgs is one document submitted for resolution.
type ClassifyArgs struct {
	Path       string
	Language   detector.Language
	Text       string
	SkipFilter bool
}

// ServiceLogger is the subset of domain events the service emits.
type ServiceLogger interface {
	RPCBatchReceived(count int)
}

// ResolverService answers classification requests and accepts pushed
// resolutions from remote resolvers.
type ResolverService struct {
	Resolver *detector.HeaderResolver
	Logger   ServiceLogger
	// Sink, if set, receives every pushed batch.
	Sink func([]detector.Resolution)
}

// Register publishes svc on server under ServiceName.
func Register(server *rpc.Server, svc *ResolverService) error {
	return server.RegisterName(ServiceName, svc)
}

// Classify resolves a single document.
func (s *ResolverService) Classify(args ClassifyArgs, reply *detector.Resolution) error {
	doc := detector.Document{Path: args.Path, Language: args.Language, Text: args.Text}
	if doc.Language == "" {
		doc.Language = detector.DefaultLanguageFor(doc.Path)
	}

	var res detector.Resolution
	if args.SkipFilter {
		res = s.Resolver.ResolveText(doc)
	} else {
		var ok bool
		res, ok = s.Resolver.Resolve(doc)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotCandidate, args.Path)
		}
	}
	res.Source = "rpc"
	telemetry.ObserveResolution(res)

	*reply = res
	return nil
}

// PushResolutions receives a batch of resolutions from a client.
func (s *ResolverService) PushResolutions(results []detector.Resolution, reply *string) error {
	s.Logger.RPCBatchReceived(len(results))
	for _, res := range results {
		telemetry.ObserveResolution(res)
	}
	if s.Sink != nil {
		s.Sink(results)
	}
	*reply = fmt.Sprintf("Successfully processed %d results.", len(results))
	return nil
}
