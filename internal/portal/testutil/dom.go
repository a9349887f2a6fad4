package testutil

import (
	"bytes"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML parses the provided HTML payload into a goquery document for assertions.
func ParseHTML(t testing.TB, body []byte) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

// CSRFToken extracts the hidden csrf_token value rendered into a page.
func CSRFToken(t testing.TB, body []byte) string {
	t.Helper()

	token, ok := ParseHTML(t, body).Find(`input[name="csrf_token"]`).Attr("value")
	if !ok || token == "" {
		t.Fatalf("csrf token not found in page")
	}
	return token
}
