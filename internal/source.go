package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nguyengg/zipmeta/s3reader"
)

// OpenSource turns either a local filename or an s3://bucket/key URI into the seekable stream and size that
// zipmeta.Open expects. The returned close function must be called once the archive is no longer needed.
func OpenSource(ctx context.Context, name string) (src io.ReadSeeker, size int64, closeFn func() error, err error) {
	if bucket, key, ok := strings.Cut(strings.TrimPrefix(name, "s3://"), "/"); ok && strings.HasPrefix(name, "s3://") {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("load default config error: %w", err)
		}

		client := s3.NewFromConfig(cfg, func(options *s3.Options) {
			// without this, getting a bunch of WARN message below:
			// WARN Response has no supported checksum. Not validating response payload.
			options.DisableLogOutputChecksumValidationSkipped = true
		})

		r, err := s3reader.New(client, bucket, key, func(opts *s3reader.Options) {
			opts.CtxFn = func() context.Context { return ctx }
		})
		if err != nil {
			return nil, 0, nil, err
		}

		return r, r.Size(), func() error { return nil }, nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, 0, nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, nil, fmt.Errorf(`stat file "%s" error: %w`, name, err)
	}

	return f, fi.Size(), f.Close, nil
}
