package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/nguyengg/zipmeta"
	"github.com/nguyengg/zipmeta/internal"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

type Command struct {
	Dir  string `short:"d" long:"dir" description:"write extracted entries under this directory" default:"."`
	Args struct {
		File  string   `positional-arg-name:"file" description:"the local file or s3://bucket/key URI to extract from" required:"yes"`
		Names []string `positional-arg-name:"name" description:"the entry names to extract; extracts every entry if none is given"`
	} `positional-args:"yes"`
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	src, size, closeFn, err := internal.OpenSource(ctx, c.Args.File)
	if err != nil {
		return err
	}
	defer closeFn()

	a, err := zipmeta.Open(src, size)
	if err != nil {
		return err
	}

	var entries []*zipmeta.Entry
	if len(c.Args.Names) == 0 {
		if entries, err = a.Entries(); err != nil {
			return err
		}
	} else {
		for _, name := range c.Args.Names {
			e, err := a.Lookup(name)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
	}

	ctx = internal.WithPrefixLogger(ctx, internal.Prefix(1, 1, c.Args.File))
	logger := internal.MustLogger(ctx)
	sometimes := rate.Sometimes{Interval: 5 * time.Second}
	n := len(entries)
	for i, e := range entries {
		if strings.HasSuffix(e.Name(), "/") {
			continue
		}

		if err = c.extract(ctx, e); err != nil {
			return fmt.Errorf(`extract "%s" error: %w`, e.Name(), err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			sometimes.Do(func() {
				logger.Printf(`[%d/%d] done extracting "%s"`, i+1, n, e.Name())
			})
		}
	}

	return nil
}

// extract streams one entry's uncompressed content to a file under the output directory.
func (c *Command) extract(ctx context.Context, e *zipmeta.Entry) error {
	rc, err := e.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	name := filepath.Join(c.Dir, filepath.FromSlash(e.Name()))
	if rel, relErr := filepath.Rel(c.Dir, name); relErr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf(`entry name "%s" escapes the output directory`, e.Name())
	}
	if err = os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	bar := progressbar.DefaultBytes(e.UncompressedSize, internal.MustPrefix(ctx)+e.Name())
	defer bar.Close()

	if _, err = io.Copy(io.MultiWriter(f, bar), rc); err != nil {
		return err
	}

	return f.Close()
}
