package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <file> <path>",
		Short: "Print a regular file's content to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			ctx := context.Background()
			d, err := s.Open(ctx, args[1], false, -1)
			if err != nil {
				return err
			}
			defer s.Close(ctx, d)

			buf := make([]byte, pageSize)
			restart := true
			for {
				n, rerr := s.Read(ctx, d, buf, restart, false)
				restart = false
				if n > 0 {
					if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
						return werr
					}
				}
				if rerr != nil {
					return rerr
				}
				if n == 0 {
					return nil
				}
			}
		},
	}
}

func newWriteCmd() *cobra.Command {
	var create bool
	var owner int32
	cmd := &cobra.Command{
		Use:   "write <file> <path>",
		Short: "Append stdin to a regular file's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			ctx := context.Background()
			d, err := s.Open(ctx, args[1], create, owner)
			if err != nil {
				return err
			}
			defer s.Close(ctx, d)

			buf := make([]byte, pageSize)
			var total int
			for {
				n, rerr := os.Stdin.Read(buf)
				if n > 0 {
					written, werr := s.Write(ctx, d, buf[:n])
					if werr != nil {
						return werr
					}
					total += written
				}
				if rerr == io.EOF {
					break
				}
				if rerr != nil {
					return rerr
				}
			}

			fmt.Fprintf(os.Stdout, "wrote %d bytes\n", total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "Create the file if it does not exist")
	cmd.Flags().Int32Var(&owner, "owner", -1, "Owning account id to record when creating")
	return cmd
}
