package main

import (
	"fmt"
	"os"

	"github.com/cozis/cozyfs"
	"github.com/cozis/cozyfs/internal/hostutil/mmapfile"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		pages  int
		backup bool
	)

	cmd := &cobra.Command{
		Use:   "init <file>",
		Short: "Create (or reset) a buffer-backed file and format it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if pages < 1 {
				return fmt.Errorf("--pages must be at least 1")
			}

			size := pages * pageSize
			if backup {
				size *= 2
			}

			f, err := mmapfile.Open(path, size)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := cozyfs.Init(f.Buf, backup, false); err != nil {
				return err
			}
			if err := f.Sync(); err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "formatted %s: %d pages, backup=%v\n", path, pages, backup)
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 16, "Number of usable pages to format")
	cmd.Flags().BoolVar(&backup, "backup", false, "Reserve a second half of the file as a crash-recovery backup")
	return cmd
}
