package archive

import (
	"context"
	"fmt"
)

// Options selects and configures a blob driver.
type Options struct {
	Driver string // none | fs | s3 | memory
	Dir    string
	S3     S3Config
}

// Open returns the blob named by opts.Driver, or nil for "none".
func Open(ctx context.Context, opts Options) (Blob, error) {
	switch opts.Driver {
	case "", "none":
		return nil, nil
	case "fs":
		return NewFilesystem(opts.Dir)
	case "memory":
		return NewMemory(), nil
	case "s3":
		return NewS3(ctx, opts.S3)
	}
	return nil, fmt.Errorf("unknown archive driver %q: must be one of: none, fs, s3, memory", opts.Driver)
}
