// Package paths turns client supplied identifiers into canonical paths.
package paths

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidIdentifier = errors.New("identifier is neither a url nor a path")

const schemeSeparator = "://"

// Normalize reduces an identifier to the escaped, lower-cased path a request
// for it carries. Query and fragment are dropped from full URLs and paths
// alike. Normalizing a canonical path returns it unchanged.
func Normalize(identifier string) (string, error) {
	var u *url.URL

	switch {
	case strings.Contains(identifier, schemeSeparator):
		parsed, err := url.Parse(identifier)
		if err != nil {
			return "", errors.Wrapf(ErrInvalidIdentifier, "%q: %s", identifier, err.Error())
		}

		if parsed.Opaque != "" {
			return "", errors.Wrapf(ErrInvalidIdentifier, "%q has no path component", identifier)
		}

		u = parsed
	case strings.HasPrefix(identifier, "/"):
		// parsed the way an http server parses a request target
		target, _, _ := strings.Cut(identifier, "#")
		parsed, err := url.ParseRequestURI(target)
		if err != nil {
			return "", errors.Wrapf(ErrInvalidIdentifier, "%q: %s", identifier, err.Error())
		}

		u = parsed
	default:
		return "", errors.Wrapf(ErrInvalidIdentifier, "%q", identifier)
	}

	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}

	return strings.ToLower(p), nil
}
