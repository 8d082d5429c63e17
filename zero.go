package vault

// Zero overwrites b with zeros in place. Used to scrub Master Key clones,
// wrapping keys, and per-file keys as soon as an operation no longer needs
// them, per spec.md §3/§9 ("Ownership"). A best-effort measure: the Go
// runtime is free to have copied the backing array via GC or escape
// analysis before Zero runs, but it closes the obvious window.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
