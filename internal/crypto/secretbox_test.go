package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	sealed, err := Seal("broker-api-secret", "correct horse")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(string(sealed), "broker-api-secret") {
		t.Fatal("sealed document contains the plaintext")
	}

	got, err := Open(sealed, "correct horse")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "broker-api-secret" {
		t.Fatalf("Open = %q", got)
	}

	if _, err := Open(sealed, "wrong password"); err == nil {
		t.Fatal("Open with wrong password succeeded")
	}
}

func TestSealRejectsWeakInput(t *testing.T) {
	if _, err := Seal("s", "short"); err == nil {
		t.Fatal("short password accepted")
	}
	if _, err := Seal("", "long enough"); err == nil {
		t.Fatal("empty secret accepted")
	}
}

func TestOpenRejectsUnknownVersion(t *testing.T) {
	if _, err := Open([]byte(`{"version":9}`), "whatever1"); err == nil {
		t.Fatal("unknown version accepted")
	}
}

func TestLoadSecret(t *testing.T) {
	sealed, err := Seal("from-file", "file password")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "secret.json")
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name    string
		src     SecretSource
		want    string
		wantErr error
	}{
		{name: "raw wins", src: SecretSource{Raw: " raw ", SealedPath: path, Password: "file password"}, want: "raw"},
		{name: "sealed file", src: SecretSource{SealedPath: path, Password: "file password"}, want: "from-file"},
		{name: "nothing", src: SecretSource{}, wantErr: ErrNoSecret},
	}
	for _, tt := range tests {
		got, err := LoadSecret(tt.src)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s: err = %v, want %v", tt.name, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s: got %q, %v; want %q", tt.name, got, err, tt.want)
		}
	}
}
