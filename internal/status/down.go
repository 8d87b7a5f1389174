package status

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/simonsavoca/bitburner/internal/uds"
)

// Down asks the daemon in stateDir to shut down and waits for its socket to disappear.
func Down(stateDir string, timeout time.Duration, w io.Writer) error {
	socketPath := filepath.Join(stateDir, uds.DefaultSocketName)

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		fmt.Fprintln(w, "Daemon is not running.")
		return nil
	}

	err := uds.NewClient(socketPath, 5*time.Second).Call("shutdown", nil, nil)
	var rejected *uds.ErrorDetail
	switch {
	case errors.As(err, &rejected):
		return fmt.Errorf("shutdown request rejected by daemon: %w", err)
	case err != nil:
		// a stale socket from a daemon that died without cleanup
		fmt.Fprintf(w, "Warning: could not reach daemon: %v\n", err)
		return nil
	}

	fmt.Fprintln(w, "Shutdown accepted. Waiting for daemon to stop...")

	poll := min(250*time.Millisecond, timeout)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); os.IsNotExist(err) {
			fmt.Fprintln(w, "hwgw daemon stopped.")
			return nil
		}
		time.Sleep(poll)
	}
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		fmt.Fprintln(w, "hwgw daemon stopped.")
		return nil
	}
	return fmt.Errorf("shutdown timeout after %v", timeout)
}
