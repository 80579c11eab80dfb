// Package policy gates command execution behind an operator-supplied
// allowlist. Resolution is unaffected; only execution is blocked.
package policy

import (
	"strings"

	termerr "github.com/defiterm/defiterm/internal/errors"
)

// CheckCommandAllowed reports whether a resolved command may execute under the
// allowlist. Entries match a bare command id ("swap"), a protocol-qualified id
// ("1inch:swap"), or a whole protocol ("1inch:*"). An empty allowlist allows
// everything.
func CheckCommandAllowed(allowlist []string, protocol, commandID string) error {
	if len(allowlist) == 0 {
		return nil
	}
	id := normalize(commandID)
	proto := normalize(protocol)
	for _, allowed := range allowlist {
		switch normalize(allowed) {
		case id, proto + ":" + id:
			return nil
		case proto + ":*":
			if proto != "" {
				return nil
			}
		}
	}
	return termerr.New(termerr.CodeBlocked, "command "+commandID+" blocked by --allow-commands policy")
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
