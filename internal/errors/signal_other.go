//go:build !unix

package errors

import "syscall"

// SignalName returns the description of sig.
func SignalName(sig syscall.Signal) string {
	return sig.String()
}
