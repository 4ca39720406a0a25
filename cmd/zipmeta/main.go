package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/zipmeta/internal/extract"
	"github.com/nguyengg/zipmeta/internal/list"
)

var opts struct {
	Profile string          `short:"p" long:"profile" description:"override AWS_PROFILE if given"`
	List    list.Command    `command:"list" alias:"ls" description:"list the entries of local or S3 ZIP files without downloading them"`
	Extract extract.Command `command:"extract" alias:"x" description:"extract entries from a local or S3 ZIP file"`
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	p.CommandHandler = func(command flags.Commander, args []string) error {
		if opts.Profile != "" {
			if err := os.Setenv("AWS_PROFILE", opts.Profile); err != nil {
				return fmt.Errorf("set AWS_PROFILE error: %w", err)
			}
		}

		return command.Execute(args)
	}

	if _, err := p.Parse(); err != nil && !flags.WroteHelp(err) {
		os.Exit(1)
	}
}
