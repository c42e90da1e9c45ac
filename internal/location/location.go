// Package location models the address bar of a page: path, query string and
// hash fragment, the one-time session token that an identity provider may
// place in either, and a navigation history that distinguishes push from
// replace.
package location

import (
	"fmt"
	"net/url"
	"strings"
)

// SessionTokenParam is the parameter the identity provider uses for the
// one-time session token.
const SessionTokenParam = "session_id"

// Location is a parsed page address.
type Location struct {
	Path     string
	RawQuery string
	Fragment string
}

// Parse parses an absolute or path-relative href.
func Parse(href string) (Location, error) {
	u, err := url.Parse(href)
	if err != nil {
		return Location{}, fmt.Errorf("parsing location %q: %w", href, err)
	}
	return FromURL(u), nil
}

// MustParse is like Parse but panics on error (for use with known-good hrefs)
func MustParse(href string) Location {
	loc, err := Parse(href)
	if err != nil {
		panic(err)
	}
	return loc
}

// FromURL converts a request URL. The fragment of a server-side request URL
// is always empty because browsers never send it.
func FromURL(u *url.URL) Location {
	path := u.Path
	if path == "" {
		path = "/"
	}
	return Location{
		Path:     path,
		RawQuery: u.RawQuery,
		Fragment: u.Fragment,
	}
}

// String renders the location as a path-relative href.
func (l Location) String() string {
	var b strings.Builder
	if l.Path == "" {
		b.WriteString("/")
	} else {
		b.WriteString(l.Path)
	}
	if l.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(l.RawQuery)
	}
	if l.Fragment != "" {
		b.WriteString("#")
		b.WriteString(l.Fragment)
	}
	return b.String()
}

// SessionToken returns the one-time session token carried by loc. The query
// string is checked first and wins when both representations are present.
func SessionToken(loc Location) (string, bool) {
	if token := lookup(loc.RawQuery, SessionTokenParam); token != "" {
		return token, true
	}
	if token := lookup(fragmentQuery(loc.Fragment), SessionTokenParam); token != "" {
		return token, true
	}
	return "", false
}

// HasSessionToken reports whether loc carries a session token.
func HasSessionToken(loc Location) bool {
	_, ok := SessionToken(loc)
	return ok
}

// WithoutSessionToken returns loc with the session token removed from both
// the query string and the fragment. Other parameters are preserved in order.
func WithoutSessionToken(loc Location) Location {
	out := loc
	out.RawQuery = strip(loc.RawQuery, SessionTokenParam)
	// Plain anchors such as "#faq" are left alone.
	if frag := fragmentQuery(loc.Fragment); hasKey(frag, SessionTokenParam) {
		out.Fragment = strip(frag, SessionTokenParam)
	}
	return out
}

// fragmentQuery trims the optional leading separator some providers emit
// ("#?session_id=..." or "##session_id=...").
func fragmentQuery(fragment string) string {
	return strings.TrimLeft(fragment, "#?")
}

func lookup(raw, key string) string {
	if raw == "" {
		return ""
	}
	// ParseQuery keeps the pairs it could decode even when it reports an error
	values, _ := url.ParseQuery(raw)
	return strings.TrimSpace(values.Get(key))
}

func hasKey(raw, key string) bool {
	for _, pair := range strings.Split(raw, "&") {
		if pairKey(pair) == key {
			return true
		}
	}
	return false
}

func pairKey(pair string) string {
	name, _, _ := strings.Cut(pair, "=")
	if unescaped, err := url.QueryUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// strip removes every key=value pair for key without re-encoding the rest.
func strip(raw, key string) string {
	if raw == "" {
		return ""
	}
	pairs := strings.Split(raw, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		if pair == "" || pairKey(pair) == key {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}
