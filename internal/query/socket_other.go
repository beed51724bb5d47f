//go:build !linux

package query

import "syscall"

// platformControl is a no-op on platforms where SO_REUSEADDR tuning
// brings no benefit for a single short-lived client socket.
func platformControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
