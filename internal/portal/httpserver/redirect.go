package httpserver

import (
	"net/url"
	"path"
	"strings"
)

const defaultRedirect = "/"

// redirectTarget resolves the post-login destination from the raw `redirect`
// value. Anything that is not a same-origin path falls back to "/".
func redirectTarget(raw, loginPath string) string {
	target := sanitizeRedirect(raw)
	if target == "" {
		return defaultRedirect
	}
	if samePath(pathOnly(target), loginPath) {
		return defaultRedirect
	}
	return target
}

func sanitizeRedirect(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "\\") {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" || parsed.Host != "" || parsed.Opaque != "" {
		return ""
	}

	pathValue := parsed.Path
	if pathValue == "" {
		if parsed.RawQuery == "" && parsed.Fragment == "" {
			return ""
		}
		pathValue = "/"
	}
	if !strings.HasPrefix(pathValue, "/") {
		return ""
	}

	unescaped, err := url.PathUnescape(pathValue)
	if err != nil || strings.Contains(unescaped, "\\") {
		return ""
	}

	cleaned := path.Clean(unescaped)
	if strings.HasPrefix(cleaned, "//") {
		return ""
	}

	target := (&url.URL{Path: cleaned}).EscapedPath()
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		target += "#" + parsed.EscapedFragment()
	}
	return target
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	trim := func(p string) string {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		for len(p) > 1 && strings.HasSuffix(p, "/") {
			p = strings.TrimSuffix(p, "/")
		}
		return p
	}
	return trim(a) == trim(b)
}

func pathOnly(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Path
}
