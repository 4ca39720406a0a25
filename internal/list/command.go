package list

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/zipmeta"
	"github.com/nguyengg/zipmeta/internal"
	"github.com/nguyengg/zipmeta/record"
)

type Command struct {
	Long bool `short:"l" long:"long" description:"also show compression method, compressed size, and CRC-32"`
	Args struct {
		Files []string `positional-arg-name:"file" description:"the local files or s3://bucket/key URIs to be listed" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		logger := internal.MustLogger(internal.WithPrefixLogger(ctx, internal.Prefix(i+1, n, file)))

		if err := c.list(ctx, file); err != nil {
			logger.Printf("list error: %v", err)
		}
	}

	return nil
}

func (c *Command) list(ctx context.Context, name string) error {
	src, size, closeFn, err := internal.OpenSource(ctx, name)
	if err != nil {
		return err
	}
	defer closeFn()

	a, err := zipmeta.Open(src, size)
	if err != nil {
		return err
	}

	entries, err := a.Entries()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		if c.Long {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%08x\t%s\t%s\n",
				humanize.IBytes(uint64(e.UncompressedSize)),
				humanize.IBytes(uint64(e.CompressedSize)),
				methodName(e.Method),
				e.CRC32,
				e.Modified().Format("2006-01-02 15:04"),
				e.Name())
			continue
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			humanize.IBytes(uint64(e.UncompressedSize)),
			e.Modified().Format("2006-01-02 15:04"),
			e.Name())
	}
	if err = w.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "%d entries\n", len(entries))
	return nil
}

func methodName(method uint16) string {
	switch method {
	case record.MethodStored:
		return "stored"
	case record.MethodDeflated:
		return "deflated"
	case record.MethodDeflate64:
		return "deflate64"
	case record.MethodBZIP2:
		return "bzip2"
	case record.MethodLZMA:
		return "lzma"
	default:
		return fmt.Sprintf("method-%d", method)
	}
}
