//go:build !linux

package scheduler

// Activities run as plain goroutines when thread pinning is not available.
func pin(core, priority int) error {
	return nil
}
