package util

import (
	"fmt"
	"io"
	"os"
)

// PrintSSHTunnelInstructions explains how to forward the loopback callback port when
// the browser runs on another machine than this process.
func PrintSSHTunnelInstructions(out io.Writer, port string) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "<server>"
	}
	border := "================================================================================"
	_, _ = fmt.Fprintln(out, "To authenticate from a remote machine, an SSH tunnel may be required.")
	_, _ = fmt.Fprintln(out, border)
	_, _ = fmt.Fprintln(out, "  Run one of the following commands on your local machine (NOT the server):")
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "  # Standard SSH command (assumes SSH port 22):\n")
	_, _ = fmt.Fprintf(out, "  ssh -L %s:127.0.0.1:%s <user>@%s -p 22\n", port, port, host)
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "  # If using an SSH key (assumes SSH port 22):\n")
	_, _ = fmt.Fprintf(out, "  ssh -i <path_to_your_key> -L %s:127.0.0.1:%s <user>@%s -p 22\n", port, port, host)
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "  NOTE: If your server's SSH port is not 22, please modify the '-p 22' part accordingly.")
	_, _ = fmt.Fprintln(out, border)
}
