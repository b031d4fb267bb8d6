package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"golang.org/x/term"

	"launchpad/internal/config"
	launchpadsdk "launchpad/sdk/go"
)

// ErrLoginAborted is returned when the prompt yields an empty key.
var ErrLoginAborted = errors.New("login aborted")

// Verifier checks that a key works.
type Verifier interface {
	WhoAmI(ctx context.Context) (launchpadsdk.Identity, error)
}

// TerminalLogin prompts for an API key, verifies it and saves it.
type TerminalLogin struct {
	ConfigPath string
	In         io.Reader
	Out        io.Writer
	// NewClient builds the verifier; defaults to the platform SDK.
	NewClient func(apiURL, apiKey string) Verifier
}

func (l *TerminalLogin) Login(ctx context.Context, apiURL string) error {
	out := l.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "Create an API key at %s\n", TokenURL(apiURL))
	fmt.Fprint(out, "API key: ")
	key, err := l.readKey()
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read api key: %w", err)
	}
	if key == "" {
		return ErrLoginAborted
	}

	newClient := l.NewClient
	if newClient == nil {
		newClient = func(apiURL, apiKey string) Verifier { return launchpadsdk.New(apiURL, apiKey) }
	}
	id, err := newClient(apiURL, key).WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("verify api key: %w", err)
	}

	cfg, err := config.LoadOptional(l.ConfigPath)
	if err != nil {
		return err
	}
	cfg.APIURL = apiURL
	cfg.APIKey = key
	if err := config.Save(l.ConfigPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s\n", id.ActorID)
	return nil
}

func (l *TerminalLogin) readKey() (string, error) {
	in := l.In
	if in == nil {
		in = os.Stdin
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// TokenURL is the dashboard page where keys are issued. The api. host prefix
// is dropped.
func TokenURL(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "https://launchpad.dev/account/api-keys"
	}
	host := strings.TrimPrefix(u.Host, "api.")
	return u.Scheme + "://" + host + "/account/api-keys"
}

// Logout removes the stored key. It is not an error if none was stored.
func Logout(path string) (bool, error) {
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return false, err
	}
	if cfg.APIKey == "" {
		return false, nil
	}
	cfg.APIKey = ""
	if err := config.Save(path, cfg); err != nil {
		return false, err
	}
	return true, nil
}
