package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/requests/abc":            "/v1/requests/:id",
		"/v1/requests/abc/reject":     "/v1/requests/:id/reject",
		"/v1/orgs/abc/can-edit":       "/v1/orgs/:id/can-edit",
		"/v1/requests?status=pending": "/v1/requests",
		"/v1/orgs/descendants":        "/v1/orgs/descendants",
		"/v1/requests/a/b/c":          "/v1/requests/a/b/c",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
