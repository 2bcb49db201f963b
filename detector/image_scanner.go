package detector

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
)

// defaultImageFileLimit caps how much of one image file is read when the
// resolver has no MaxTextBytes of its own.
const defaultImageFileLimit = 1 << 20

// ImageLogger receives image scan events.
type ImageLogger interface {
	ImageScanStarted(image string)
	ImageScanCompleted(image string, scanned, changed int)
}

// ScanImage pulls imageName and resolves every header candidate in its
// flattened filesystem.
func (hr *HeaderResolver) ScanImage(ctx context.Context, imageName string, logger ImageLogger) ([]Resolution, error) {
	ref, err := name.ParseReference(imageName)
	if err != nil {
		return nil, fmt.Errorf("error parsing image name: %w", err)
	}

	// crane handles authentication through the default keychain
	img, err := crane.Pull(ref.Name(),
		crane.WithAuthFromKeychain(authn.DefaultKeychain),
		crane.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("error getting image from registry: %w", err)
	}

	return hr.ScanImageFilesystem(ctx, imageName, img, logger)
}

// ScanImageFilesystem resolves header candidates of an already loaded image.
// Layers are flattened first so deleted and overwritten files are honoured.
func (hr *HeaderResolver) ScanImageFilesystem(ctx context.Context, label string, img v1.Image, logger ImageLogger) ([]Resolution, error) {
	if logger != nil {
		logger.ImageScanStarted(label)
	}

	reader := mutate.Extract(img)
	defer reader.Close()

	results, err := hr.scanTarball(ctx, reader, "image:"+label)
	if err != nil {
		return results, err
	}

	if logger != nil {
		changed := 0
		for _, r := range results {
			if r.Changed {
				changed++
			}
		}
		logger.ImageScanCompleted(label, len(results), changed)
	}
	return results, nil
}

// scanTarball reads a tarball stream and resolves every eligible regular file
func (hr *HeaderResolver) scanTarball(ctx context.Context, reader io.Reader, source string) ([]Resolution, error) {
	limit := int64(hr.MaxTextBytes)
	if limit <= 0 {
		limit = defaultImageFileLimit
	}

	var results []Resolution
	tarReader := tar.NewReader(reader)
	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break // End of archive
		}
		if err != nil {
			return results, fmt.Errorf("error reading tar header: %w", err)
		}
		// Only check files, not directories
		if header.Typeflag != tar.TypeReg {
			continue
		}

		filePath := path.Clean("/" + header.Name)
		if !hr.Filter.Eligible(filePath) {
			continue
		}

		content, err := io.ReadAll(io.LimitReader(tarReader, limit))
		if err != nil {
			return results, fmt.Errorf("error reading file content for %s: %w", filePath, err)
		}

		res := hr.ResolveText(Document{
			Path:     filePath,
			Language: DefaultLanguageFor(filePath),
			Text:     string(content),
		})
		res.Source = source
		results = append(results, res)
	}
	return results, nil
}
