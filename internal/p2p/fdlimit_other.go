//go:build !unix

package p2p

// conservativeFileLimit is used on platforms without rlimit semantics.
const conservativeFileLimit = 512

// raiseFileLimit is a no-op outside unix; it reports a conservative
// estimate rather than failing startup.
func raiseFileLimit() (uint64, error) {
	return conservativeFileLimit, nil
}
