package domain

import "strings"

// ApiDefinition (route) maps an inbound path pattern to a backend. Exactly
// one route matches a given (method, path); when multiple enabled routes
// match, the first-registered wins.
type ApiDefinition struct {
	ID             string
	Name           string
	RoutePattern   string
	BackendURL     string
	AllowedMethods []string
	Enabled        bool
}

// AllowsMethod reports whether method is in the route's allowed set.
func (r *ApiDefinition) AllowsMethod(method string) bool {
	for _, m := range r.AllowedMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// MatchPattern matches path against the route's glob pattern. A pattern
// segment of "*" matches exactly one path segment; a segment beginning with
// ":" binds that path segment as a named parameter. The returned params map
// is non-nil only on a match.
func MatchPattern(pattern, path string) (params map[string]string, ok bool) {
	patternSegs := splitSegments(pattern)
	pathSegs := splitSegments(path)
	if len(patternSegs) != len(pathSegs) {
		return nil, false
	}

	params = make(map[string]string)
	for i, seg := range patternSegs {
		switch {
		case seg == "*":
			continue
		case strings.HasPrefix(seg, ":") && len(seg) > 1:
			params[seg[1:]] = pathSegs[i]
		case seg == pathSegs[i]:
			continue
		default:
			return nil, false
		}
	}
	return params, true
}

func splitSegments(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "/")
}
