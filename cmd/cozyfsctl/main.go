// Command cozyfsctl is a thin, non-interactive host program over the
// cozyfs engine: each invocation opens (or creates) a buffer-backed
// file, runs exactly one operation against it, and exits. It is not a
// shell or a mount helper; there is no command loop and no FUSE surface.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
