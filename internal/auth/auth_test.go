package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	logs "github.com/danmuck/urigallery/internal/logging"
	"github.com/danmuck/urigallery/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
			logs.Logf("auth/static-token: stored=%q input=%q err=%v", tc.stored, tc.input, err)
		})
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer  abc ", want: "abc", ok: true},
		{header: "Bearer ", ok: false},
		{header: "Basic abc", ok: false},
		{header: "", ok: false},
	}
	for _, tc := range tests {
		got, ok := BearerToken(tc.header)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("header=%q got=%q ok=%v", tc.header, got, ok)
		}
	}
}

func TestAuthorizeWithFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	r := httptest.NewRequest(http.MethodGet, "/relay", nil)
	if err := Authorize(r, validator); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing header: expected unauthorized, got %v", err)
	}
	SetBearer(r.Header, "nope")
	if err := Authorize(r, validator); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad token: expected unauthorized, got %v", err)
	}
	SetBearer(r.Header, "ok")
	if err := Authorize(r, validator); err != nil {
		t.Fatalf("good token: %v", err)
	}
}

func TestTokenStoreLifecycle(t *testing.T) {
	testlog.Start(t)
	store := NewTokenStore(filepath.Join(t.TempDir(), "nested", "token"))

	if _, err := store.Load(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if err := store.Save("  tok-123 "); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load()
	if err != nil || got != "tok-123" {
		t.Fatalf("load got=%q err=%v", got, err)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(store.Path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Fatalf("token perm=%o", perm)
		}
	}
	if err := store.Save(""); err == nil {
		t.Fatalf("expected empty token rejection")
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken after clear, got %v", err)
	}
}
