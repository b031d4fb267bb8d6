package credentials

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"launchpad/internal/config"
	launchpadsdk "launchpad/sdk/go"
)

func TestEnsureLogsInOnceThenReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	calls := 0
	g := &Guard{
		ConfigPath: path,
		Login: LoginFunc(func(ctx context.Context, apiURL string) error {
			calls++
			return config.Save(path, &config.Config{APIURL: apiURL, APIKey: "fresh-key"})
		}),
	}
	creds, err := g.Ensure(context.Background(), Options{APIURL: "http://127.0.0.1:9"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if creds.APIKey != "fresh-key" || creds.APIURL != "http://127.0.0.1:9" {
		t.Fatalf("unexpected creds %+v", creds)
	}
	creds, err = g.Ensure(context.Background(), Options{APIURL: "http://127.0.0.1:9"})
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if creds.APIKey != "fresh-key" || calls != 1 {
		t.Fatalf("login should run once, ran %d times", calls)
	}
}

func TestEnsureExplicitKeySkipsLogin(t *testing.T) {
	g := &Guard{
		ConfigPath: filepath.Join(t.TempDir(), "config.yml"),
		Login: LoginFunc(func(context.Context, string) error {
			t.Fatalf("login should not run")
			return nil
		}),
	}
	creds, err := g.Ensure(context.Background(), Options{APIKey: "flag-key"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if creds.APIKey != "flag-key" || creds.APIURL != config.DefaultAPIURL {
		t.Fatalf("unexpected creds %+v", creds)
	}
}

func TestEnsureMissingAfterLogin(t *testing.T) {
	g := &Guard{
		ConfigPath: filepath.Join(t.TempDir(), "config.yml"),
		Login:      LoginFunc(func(context.Context, string) error { return nil }),
	}
	if _, err := g.Ensure(context.Background(), Options{}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}

	g.Login = LoginFunc(func(context.Context, string) error { return ErrLoginAborted })
	_, err := g.Ensure(context.Background(), Options{})
	if !errors.Is(err, ErrMissingCredentials) || !errors.Is(err, ErrLoginAborted) {
		t.Fatalf("expected both sentinels, got %v", err)
	}

	g.Login = nil
	if _, err := g.Ensure(context.Background(), Options{}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected missing credentials without login, got %v", err)
	}
}

func TestTryCredentialPrefersOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := config.Save(path, &config.Config{APIURL: "http://stored.example", APIKey: "stored"}); err != nil {
		t.Fatal(err)
	}
	g := &Guard{ConfigPath: path}
	creds, ok, err := g.TryCredential(Options{})
	if err != nil || !ok || creds.APIKey != "stored" || creds.APIURL != "http://stored.example" {
		t.Fatalf("unexpected %+v %v %v", creds, ok, err)
	}
	creds, _, _ = g.TryCredential(Options{APIKey: "explicit", APIURL: "http://explicit.example"})
	if creds.APIKey != "explicit" || creds.APIURL != "http://explicit.example" {
		t.Fatalf("options should win: %+v", creds)
	}
}

type fakeVerifier struct {
	key string
	err error
}

func (f fakeVerifier) WhoAmI(context.Context) (launchpadsdk.Identity, error) {
	if f.err != nil {
		return launchpadsdk.Identity{}, f.err
	}
	return launchpadsdk.Identity{ActorID: "actor-" + f.key}, nil
}

func TestTerminalLoginSavesVerifiedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	var out strings.Builder
	l := &TerminalLogin{
		ConfigPath: path,
		In:         strings.NewReader("  lp_key123 \n"),
		Out:        &out,
		NewClient:  func(apiURL, key string) Verifier { return fakeVerifier{key: key} },
	}
	if err := l.Login(context.Background(), "https://api.launchpad.dev"); err != nil {
		t.Fatalf("login: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "lp_key123" || cfg.APIURL != "https://api.launchpad.dev" {
		t.Fatalf("unexpected saved config %+v", cfg)
	}
	if !strings.Contains(out.String(), "https://launchpad.dev/account/api-keys") {
		t.Fatalf("token url missing from prompt: %s", out.String())
	}
	if !strings.Contains(out.String(), "actor-lp_key123") {
		t.Fatalf("identity missing from output: %s", out.String())
	}

	removed, err := Logout(path)
	if err != nil || !removed {
		t.Fatalf("logout: %v %v", removed, err)
	}
	cfg, _ = config.Load(path)
	if cfg.APIKey != "" {
		t.Fatalf("key should be cleared")
	}
	removed, _ = Logout(path)
	if removed {
		t.Fatalf("second logout should report nothing removed")
	}
}

func TestTerminalLoginRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	l := &TerminalLogin{ConfigPath: path, In: strings.NewReader("\n"), Out: &strings.Builder{}}
	if err := l.Login(context.Background(), "http://127.0.0.1:9"); !errors.Is(err, ErrLoginAborted) {
		t.Fatalf("expected abort, got %v", err)
	}
	l = &TerminalLogin{
		ConfigPath: path,
		In:         strings.NewReader("bad\n"),
		Out:        &strings.Builder{},
		NewClient: func(string, string) Verifier {
			return fakeVerifier{err: &launchpadsdk.APIError{StatusCode: 401, Body: "nope"}}
		},
	}
	if err := l.Login(context.Background(), "http://127.0.0.1:9"); err == nil {
		t.Fatalf("expected verify error")
	}
	if _, err := config.Load(path); err == nil {
		t.Fatalf("rejected key must not be saved")
	}
}
