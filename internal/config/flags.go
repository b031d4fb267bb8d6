package config

import (
	"github.com/spf13/pflag"
)

// Overrides are the connection flags shared by every command that talks to
// the platform. Empty values defer to the config file.
type Overrides struct {
	Path   string
	APIURL string
	APIKey string
}

// AddFlags registers the override flags on a flag set.
func (o *Overrides) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Path, "config", "", "config file (default $LAUNCHPAD_CONFIG or ~/.config/launchpad/config.yml)")
	fs.StringVar(&o.APIURL, "api-url", "", "platform API URL")
	fs.StringVar(&o.APIKey, "api-key", "", "platform API key")
}

// ConfigPath returns the explicit path or the default location.
func (o Overrides) ConfigPath() string {
	if o.Path != "" {
		return o.Path
	}
	return Path()
}

// Apply layers non-empty overrides onto a copy of c.
func (o Overrides) Apply(c *Config) *Config {
	out := Default()
	if c != nil {
		*out = *c
	}
	if o.APIURL != "" {
		out.APIURL = o.APIURL
	}
	if o.APIKey != "" {
		out.APIKey = o.APIKey
	}
	return out
}
