// Package capability resolves the two credential families the service
// accepts: capability URLs (opaque keys embedded in the request path) and
// API keys (sk_live_/sk_test_ bearer tokens). Both resolve to a single
// Credential value that handlers authorize against.
//
// The resolver never stores plaintext keys. Lookups go through the
// SHA-256 hash, with a constant-time recheck of the hash after fetch so
// the comparison cost does not depend on where a mismatch occurs.
//
// Every capability-side failure must surface to the client as HTTP 404;
// the error code still names the precise reason. The HTTP layer owns that
// mapping, this package only classifies.
package capability
