package workload

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/kloudmate/header-resolver/detector"
	"golang.org/x/sync/errgroup"
)

// ScanLogger receives workspace scan events.
type ScanLogger interface {
	WorkspaceScanStarted(root string)
	WorkspaceScanCompleted(root string, scanned, changed int)
	DocumentReadFailed(path string, err error)
}

// hiddenDir reports whether a directory below root is hidden (.git, .cache).
// Neither scans nor watchers descend into one.
func hiddenDir(root, path, name string) bool {
	return path != root && len(name) > 1 && name[0] == '.'
}

// CollectCandidates walks root and returns every header candidate, sorted.
func CollectCandidates(root string, filter detector.EligibilityFilter) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if hiddenDir(root, path, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filter.Eligible(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// AnalyzeWorkspace resolves every header candidate under root with up to jobs
// files in flight, the way an editor would on opening each of them. Unreadable
// files are logged and skipped. Results follow path order.
func AnalyzeWorkspace(ctx context.Context, root string, resolver *detector.HeaderResolver, jobs int, logger ScanLogger) ([]detector.Resolution, error) {
	logger.WorkspaceScanStarted(root)

	files, err := CollectCandidates(root, resolver.Filter)
	if err != nil {
		return nil, err
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	results := make([]*detector.Resolution, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(files))))

	for i, path := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			res, ok, err := resolver.ResolveFile(path, detector.LanguageUnknown)
			if err != nil {
				logger.DocumentReadFailed(path, err)
				return nil
			}
			if !ok {
				return nil
			}
			res.Source = "workspace"

			mu.Lock()
			results[i] = &res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]detector.Resolution, 0, len(files))
	changed := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Changed {
			changed++
		}
		out = append(out, *res)
	}

	logger.WorkspaceScanCompleted(root, len(out), changed)
	return out, nil
}
