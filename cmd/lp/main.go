package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"launchpad/internal/config"
	"launchpad/internal/credentials"
	"launchpad/internal/render"
	"launchpad/internal/resolve"
	launchpadsdk "launchpad/sdk/go"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// errReported means the command already printed its failure.
var errReported = errors.New("failure already reported")

var flagOverrides config.Overrides

var rootCmd = &cobra.Command{
	Use:   "lp",
	Short: "Launchpad CLI",
	Long: `lp deploys and invokes functions on the Launchpad platform.

Resources are addressed by slug paths: org/project/environment, optionally
followed by a cloud backend. Every lookup returns the caller's permissions
on that resource; commands stop at the first level the caller cannot read.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			render.Error(os.Stderr, err, viper.GetBool("json"))
		}
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LAUNCHPAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flagOverrides.AddFlags(flags)
	flags.Bool("json", false, "output JSON")
	flags.BoolP("verbose", "v", false, "debug logging on stderr")
	for _, name := range []string{"config", "api-url", "api-key", "json", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(envCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(deployCmd())
	rootCmd.AddCommand(deploymentsCmd())
	rootCmd.AddCommand(invokeCmd())
	rootCmd.AddCommand(proxyCmd())
	rootCmd.AddCommand(devCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})
}

// --- helpers ---

// overrides layers LAUNCHPAD_* environment values under explicit flags.
func overrides() config.Overrides {
	return config.Overrides{
		Path:   viper.GetString("config"),
		APIURL: viper.GetString("api-url"),
		APIKey: viper.GetString("api-key"),
	}
}

func logger() *slog.Logger {
	return render.NewLogger(os.Stderr, viper.GetBool("verbose"))
}

func newGuard() *credentials.Guard {
	path := overrides().ConfigPath()
	return &credentials.Guard{
		ConfigPath: path,
		Login:      &credentials.TerminalLogin{ConfigPath: path, In: os.Stdin, Out: os.Stderr},
		Logger:     logger(),
	}
}

// withClient ensures credentials, prompting for a login at most once, and
// hands fn an authenticated client.
func withClient(ctx context.Context, fn func(context.Context, *launchpadsdk.Client) error) error {
	o := overrides()
	creds, err := newGuard().Ensure(ctx, credentials.Options{APIURL: o.APIURL, APIKey: o.APIKey})
	if err != nil {
		return err
	}
	c := launchpadsdk.New(creds.APIURL, creds.APIKey)
	c.UserAgent = "lp/" + version
	return fn(ctx, c)
}

func newChain(c *launchpadsdk.Client) resolve.Chain {
	chain := resolve.New(resolve.ClientLookup{Client: c})
	chain.Logger = logger()
	return chain
}

// targetPath parses a slug path argument. Without one it falls back to the
// defaults stored in the config file.
func targetPath(args []string) (resolve.Path, error) {
	if len(args) > 0 {
		p, err := resolve.ParsePath(args[0])
		return p, render.Usage(err)
	}
	path := overrides().ConfigPath()
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return resolve.Path{}, err
	}
	var parts []string
	for _, s := range []string{cfg.Defaults.Organization, cfg.Defaults.Project, cfg.Defaults.Environment} {
		if s == "" {
			break
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return resolve.Path{}, render.Usage(fmt.Errorf("no target given and no defaults set in %s", path))
	}
	return resolve.ParsePath(strings.Join(parts, "/"))
}

// orgBackendPath reinterprets "org/backend" as an organization backend.
func orgBackendPath(p resolve.Path) (resolve.Path, error) {
	if p.Project == "" || p.Environment != "" {
		return resolve.Path{}, render.Usage(fmt.Errorf("organization backends are addressed as org/backend"))
	}
	return resolve.Path{Organization: p.Organization, CloudBackend: p.Project, OrganizationBackend: true}, nil
}

func printJSONOrTable(v any, table func()) error {
	if viper.GetBool("json") {
		return render.JSON(os.Stdout, v)
	}
	table()
	return nil
}
