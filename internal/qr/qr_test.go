package qr

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestDataURL(t *testing.T) {
	url, err := DataURL("2@AbCdEf,xyz,123")
	if err != nil {
		t.Fatal(err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("url = %.40q, want %s prefix", url, prefix)
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("payload is not a PNG")
	}
}

func TestDataURLChangesWithCode(t *testing.T) {
	a, err := DataURL("code-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := DataURL("code-b")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("different challenges rendered the same image")
	}
}

func TestPNGEmpty(t *testing.T) {
	if _, err := PNG(""); err == nil {
		t.Error("expected error for empty code")
	}
}
