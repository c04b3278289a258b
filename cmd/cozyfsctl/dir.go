package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newMkdirCmd() *cobra.Command {
	var owner int32
	cmd := &cobra.Command{
		Use:   "mkdir <file> <path>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()
			return s.Mkdir(context.Background(), args[1], owner)
		},
	}
	cmd.Flags().Int32Var(&owner, "owner", -1, "Owning account id to record")
	return cmd
}

func newRmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <file> <path>",
		Short: "Remove an empty directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()
			return s.Rmdir(context.Background(), args[1])
		},
	}
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <file> <path>",
		Short: "List a directory's immediate children",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			entries, err := s.ReadDir(args[1])
			if err != nil {
				return err
			}
			for _, e := range entries {
				kind := "-"
				if e.IsDir {
					kind = "d"
				}
				fmt.Fprintf(os.Stdout, "%s %s\n", kind, e.Name)
			}
			return nil
		},
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <file> <path>",
		Short: "Report kind, size, link count, owner, and mode for a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			st, err := s.Stat(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout,
				"dir=%v size=%d refcount=%d owner=%d mode=%o\n",
				st.IsDir, st.Size, st.RefCount, st.OwnerUID, st.Mode)
			return nil
		},
	}
}

func newLinkCmd() *cobra.Command {
	var owner int32
	cmd := &cobra.Command{
		Use:   "link <file> <old-path> <new-path>",
		Short: "Add a second name for an existing regular file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()
			return s.Link(context.Background(), args[1], args[2], owner)
		},
	}
	cmd.Flags().Int32Var(&owner, "owner", -1, "Owning account id (not recorded by link)")
	return cmd
}

func newUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <file> <path>",
		Short: "Remove a name and drop its target's reference count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()
			return s.Unlink(context.Background(), args[1])
		},
	}
}

func newMkusrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkusr <file> <name>",
		Short: "Register a new account name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			id, err := s.Mkusr(context.Background(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%d\n", id)
			return nil
		},
	}
}

func newRmusrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmusr <file> <name>",
		Short: "Remove a previously registered account name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFile, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer closeFile()
			return s.Rmusr(context.Background(), args[1])
		},
	}
}
