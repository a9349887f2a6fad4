package httpserver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedirectTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty defaults to root", raw: "", want: "/"},
		{name: "plain path", raw: "/dashboard", want: "/dashboard"},
		{name: "query and fragment kept", raw: "/jobs?tab=saved#top", want: "/jobs?tab=saved#top"},
		{name: "dot segments cleaned", raw: "/a/../b", want: "/b"},
		{name: "absolute url rejected", raw: "https://evil.example/phish", want: "/"},
		{name: "protocol relative rejected", raw: "//evil.example", want: "/"},
		{name: "backslash rejected", raw: `/\evil.example`, want: "/"},
		{name: "javascript scheme rejected", raw: "javascript:alert(1)", want: "/"},
		{name: "relative path rejected", raw: "dashboard", want: "/"},
		{name: "login path avoided", raw: "/login?redirect=/x", want: "/"},
		{name: "login path with slash avoided", raw: "/login/", want: "/"},
		{name: "encoded slashes collapse", raw: "/%2F%2Fevil.example", want: "/evil.example"},
		{name: "whitespace trimmed", raw: "  /profile  ", want: "/profile"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, redirectTarget(tc.raw, "/login"))
		})
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/login", normalizePath("", "/login"))
	require.Equal(t, "/signin", normalizePath("signin/", "/login"))
	require.Equal(t, "/", normalizePath("/", "/login"))
}
