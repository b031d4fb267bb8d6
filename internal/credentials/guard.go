package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"launchpad/internal/config"
)

// ErrMissingCredentials is returned when no API key is available even after
// the interactive login ran. It is a precondition failure, not an invocation
// failure.
var ErrMissingCredentials = errors.New("missing credentials: run lp login or set LAUNCHPAD_API_KEY")

// Credentials are what a command needs to call the platform.
type Credentials struct {
	APIURL string
	APIKey string
}

// Options carry explicit values from flags or the environment. They win over
// the stored config.
type Options struct {
	APIURL string
	APIKey string
}

// Login obtains a key for apiURL and persists it to the config file.
type Login interface {
	Login(ctx context.Context, apiURL string) error
}

// LoginFunc adapts a function to Login.
type LoginFunc func(ctx context.Context, apiURL string) error

func (f LoginFunc) Login(ctx context.Context, apiURL string) error { return f(ctx, apiURL) }

// Guard resolves credentials in two phases: a side-effect free lookup and,
// only if that comes back empty, an explicit interactive login.
type Guard struct {
	ConfigPath string
	Login      Login
	Logger     *slog.Logger
}

// TryCredential looks at explicit options, then the stored config. It never
// prompts. ok is false when no key was found.
func (g *Guard) TryCredential(opts Options) (Credentials, bool, error) {
	cfg, err := config.LoadOptional(g.ConfigPath)
	if err != nil {
		return Credentials{}, false, err
	}
	creds := Credentials{APIURL: cfg.APIURL, APIKey: cfg.APIKey}
	if opts.APIURL != "" {
		creds.APIURL = opts.APIURL
	}
	if opts.APIKey != "" {
		creds.APIKey = opts.APIKey
	}
	if creds.APIURL == "" {
		creds.APIURL = config.DefaultAPIURL
	}
	return creds, creds.APIKey != "", nil
}

// TriggerInteractiveLogin runs the login collaborator.
func (g *Guard) TriggerInteractiveLogin(ctx context.Context, apiURL string) error {
	if g.Login == nil {
		return fmt.Errorf("%w: interactive login unavailable", ErrMissingCredentials)
	}
	g.logger().Info("no api key found, starting login", "api_url", apiURL)
	if err := g.Login.Login(ctx, apiURL); err != nil {
		return fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}
	return nil
}

// Ensure returns usable credentials, logging in once if none are stored.
func (g *Guard) Ensure(ctx context.Context, opts Options) (Credentials, error) {
	creds, ok, err := g.TryCredential(opts)
	if err != nil {
		return Credentials{}, err
	}
	if ok {
		return creds, nil
	}
	if err := g.TriggerInteractiveLogin(ctx, creds.APIURL); err != nil {
		return Credentials{}, err
	}
	creds, ok, err = g.TryCredential(opts)
	if err != nil {
		return Credentials{}, err
	}
	if !ok {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

func (g *Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
