package document

import "strings"

// PathDelimiter separates the segments of an extraction path, as in
// "billing_address > city".
const PathDelimiter = ">"

// Path is a parsed extraction path: the keys walked left to right.
type Path []string

// ParsePath splits s on PathDelimiter and trims each segment. A path without
// a delimiter is a direct key.
func ParsePath(s string) Path {
	parts := strings.Split(s, PathDelimiter)
	out := make(Path, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (p Path) String() string { return strings.Join(p, " "+PathDelimiter+" ") }

// Resolve walks p through nested objects starting at v. The walk returns def
// as soon as a key is missing or an intermediate value is not an object; an
// explicit null in the middle of the chain also yields def. The final value is
// returned as stored, including an explicit null.
func (v Value) Resolve(p Path, def Value) Value {
	if len(p) == 0 {
		return def
	}
	cur := v
	for i, key := range p {
		if cur.kind != Object {
			return def
		}
		next, ok := cur.obj[key]
		if !ok {
			return def
		}
		if i < len(p)-1 && next.kind == Null {
			return def
		}
		cur = next
	}
	return cur
}

// Get is Resolve with a null default, parsing s on the fly.
func (v Value) Get(s string) Value { return v.Resolve(ParsePath(s), NullValue) }
