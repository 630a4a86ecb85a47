package ingest

import (
	"fmt"

	"github.com/google/uuid"
)

// DeriveVersionID computes the deterministic version-id of §3: re-ingesting
// identical object bytes must yield the same version-id. Grounded on the
// same deterministic-UUID derivation used elsewhere in this codebase to
// turn content fingerprints into stable identifiers.
func DeriveVersionID(etag string, size int64, mtimeUnixMs int64) string {
	name := fmt.Sprintf("%s|%d|%d", etag, size, mtimeUnixMs)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
