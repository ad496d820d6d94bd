package engine

import (
	"bytes"
	"io"
	"os/exec"

	"github.com/creack/pty"
)

// runWithPTY starts cmd attached to a pseudo-terminal and copies everything
// the child writes into a buffer, as Invoke's non-PTY path does with
// cmd.Stdout/cmd.Stderr. The master end is closed once the child's output stream
// is drained, which is how pty.Start signals EOF to the copy loop.
func runWithPTY(cmd *exec.Cmd) (*bytes.Buffer, error) {
	master, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	defer master.Close()

	var out bytes.Buffer
	_, copyErr := io.Copy(&out, master)
	waitErr := cmd.Wait()
	if copyErr != nil && waitErr == nil {
		// A closed pty master reads as an I/O error once the child exits;
		// that's expected and not itself a failure.
		_ = copyErr
	}
	return &out, waitErr
}
