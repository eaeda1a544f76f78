package util

import (
	"net/url"
	"strings"
	"testing"
)

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("MIIEvQIBADANBgkqhkiG9w0BAQEFAASC"); got != "****AASC" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskSecret("abc"); got != "****" {
		t.Fatalf("short secrets must be fully hidden, got %q", got)
	}
	if got := MaskSecret("  "); got != "" {
		t.Fatalf("expected empty mask for blank input, got %q", got)
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	got := MaskSensitiveQuery("page=2&key=AIzaSyA-secret-value&sign=abcdefgh&access_token=t0ken1234")
	if strings.Contains(got, "secret-value") || strings.Contains(got, "abcdefgh") || strings.Contains(got, "t0ken") {
		t.Fatalf("sensitive params leaked: %q", got)
	}
	values, err := url.ParseQuery(got)
	if err != nil {
		t.Fatalf("masked query must stay parseable: %v", err)
	}
	if values.Get("page") != "2" {
		t.Fatalf("non-sensitive params must be kept: %q", got)
	}
	if values.Get("key") != "****alue" || values.Get("sign") != "****efgh" {
		t.Fatalf("unexpected masks: %q", got)
	}
	if MaskSensitiveQuery("a=1&b=2") != "a=1&b=2" {
		t.Fatalf("query without sensitive params must be unchanged")
	}
	if MaskSensitiveQuery("bad=%zz") != "bad=%zz" {
		t.Fatalf("unparseable query must be returned as is")
	}
}
