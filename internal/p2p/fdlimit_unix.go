//go:build unix

package p2p

import "golang.org/x/sys/unix"

// raiseFileLimit raises the process's open-file soft limit to its hard
// limit, mirroring original_source's raise_fd_limit so a broker started
// under a conservative default shell ulimit can still reach max_connections
// (spec.md §4.6). It returns the resulting soft limit, or an error if the
// rlimit syscalls themselves fail (not if raising merely has no effect).
func raiseFileLimit() (uint64, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, err
	}
	if rlim.Cur >= rlim.Max {
		return rlim.Cur, nil
	}
	rlim.Cur = rlim.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		// Some sandboxes let a process read a high hard limit but deny
		// raising to it; fall back to whatever is already in effect
		// rather than failing the whole broker over this.
		if getErr := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); getErr == nil {
			return rlim.Cur, nil
		}
		return 0, err
	}
	return rlim.Cur, nil
}
