package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"launchpad/internal/config"
	"launchpad/internal/credentials"
	"launchpad/internal/domain"
	"launchpad/internal/proxy"
	"launchpad/internal/render"
	"launchpad/internal/resolve"
	launchpadsdk "launchpad/sdk/go"
)

// maxProxyBody matches the platform's synchronous invocation payload limit.
const maxProxyBody = 6 << 20

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store an API key for the platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			o := overrides()
			cfg, err := config.LoadOptional(o.ConfigPath())
			if err != nil {
				return err
			}
			apiURL := o.Apply(cfg).APIURL
			l := &credentials.TerminalLogin{ConfigPath: o.ConfigPath(), In: os.Stdin, Out: os.Stderr}
			return l.Login(cmd.Context(), apiURL)
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := credentials.Logout(overrides().ConfigPath())
			if err != nil {
				return err
			}
			if removed {
				fmt.Println("Logged out")
			} else {
				fmt.Println("Not logged in")
			}
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the actor behind the current credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *launchpadsdk.Client) error {
				id, err := c.WhoAmI(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(id, func() { fmt.Println(id.ActorID) })
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect CLI configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration with the key masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			o := overrides()
			cfg, err := config.LoadOptional(o.ConfigPath())
			if err != nil {
				return err
			}
			redacted := o.Apply(cfg).Redacted()
			if viper.GetBool("json") {
				return render.JSON(os.Stdout, redacted)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redacted)
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(overrides().ConfigPath())
		},
	})
	return cfgCmd
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Organizations"}
	org.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List organizations you can read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *launchpadsdk.Client) error {
				orgs, err := c.ListOrganizations(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(orgs, func() { render.Organizations(os.Stdout, orgs) })
			})
		},
	})
	return org
}

func envCmd() *cobra.Command {
	env := &cobra.Command{Use: "env", Short: "Environments"}
	env.AddCommand(&cobra.Command{
		Use:   "list [org/project]",
		Short: "List environments of a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := targetPath(args)
			if err != nil {
				return err
			}
			if p.Project == "" {
				return render.Usage(fmt.Errorf("env list needs org/project, got %q", p.String()))
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *launchpadsdk.Client) error {
				r, err := newChain(c).Project(ctx, p.Organization, p.Project)
				if err != nil {
					return err
				}
				envs, err := c.ListEnvironments(ctx, r.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(envs, func() { render.Environments(os.Stdout, envs) })
			})
		},
	})
	return env
}

func resolveCmd() *cobra.Command {
	var orgBackend bool
	cmd := &cobra.Command{
		Use:   "resolve [org[/project[/environment[/backend]]]]",
		Short: "Resolve a slug path and show permissions at every level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := targetPath(args)
			if err != nil {
				return err
			}
			if orgBackend {
				if p, err = orgBackendPath(p); err != nil {
					return err
				}
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *launchpadsdk.Client) error {
				res, err := newChain(c).Path(ctx, p)
				if err != nil {
					return err
				}
				return printJSONOrTable(res.Value, func() { render.Resolution(os.Stdout, p, res) })
			})
		},
	}
	cmd.Flags().BoolVar(&orgBackend, "org-backend", false, "treat org/backend as an organization cloud backend")
	return cmd
}

func deployCmd() *cobra.Command {
	var req domain.DeploymentRequest
	cmd := &cobra.Command{
		Use:   "deploy [org/project/environment]",
		Short: "Create a deployment in an environment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := targetPath(args)
			if err != nil {
				return err
			}
			if p.Environment == "" || p.CloudBackend != "" {
				return render.Usage(fmt.Errorf("deploy targets an environment, got %q", p.String()))
			}
			req.CLIVersion = version
			if err := req.Validate(); err != nil {
				return render.Usage(err)
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *launchpadsdk.Client) error {
				r, err := newChain(c).Environment(ctx, p.Organization, p.Project, p.Environment)
				if err != nil {
					return err
				}
				if err := resolve.RequireUpdate(resolve.LevelEnvironment, r.Environment); err != nil {
					return err
				}
				d, err := c.CreateDeployment(ctx, r.Environment.ID, launchpadsdk.DeploymentRequest{
					CLIVersion: req.CLIVersion,
					Framework:  req.Framework,
					Runtime:    req.Runtime,
					Memory:     req.Memory,
					Timeout:    req.Timeout,
					Arch:       req.Arch,
				})
				if err != nil {
					return err
				}
				logger().Info("deployment created", "id", d.ID, "environment", p.String())
				return printJSONOrTable(d, func() { render.Deployment(os.Stdout, d) })
			})
		},
	}
	cmd.Flags().StringVar(&req.Runtime, "runtime", "python3.12", "function runtime")
	cmd.Flags().StringVar(&req.Arch, "arch", "x86_64", "instruction set architecture")
	cmd.Flags().IntVar(&req.Memory, "memory", 1024, "memory in MB")
	cmd.Flags().IntVar(&req.Timeout, "timeout", 30, "function timeout in seconds")
	cmd.Flags().StringVar(&req.Framework, "framework", "", "web framework, if any")
	return cmd
}

func deploymentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "deployments", Short: "Deployments"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list [org/project/environment]",
		Short: "List deployments of an environment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := targetPath(args)
			if err != nil {
				return err
			}
			if p.Environment == "" || p.CloudBackend != "" {
				return render.Usage(fmt.Errorf("deployments list targets an environment, got %q", p.String()))
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *launchpadsdk.Client) error {
				r, err := newChain(c).Environment(ctx, p.Organization, p.Project, p.Environment)
				if err != nil {
					return err
				}
				ds, err := c.ListDeployments(ctx, r.Environment.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(ds, func() { render.Deployments(os.Stdout, ds) })
			})
		},
	})
	return cmd
}

type invoker func(context.Context, launchpadsdk.InvokeRequest) (launchpadsdk.InvokeResult, error)

// resolveInvoker resolves p down to an environment or cloud backend.
func resolveInvoker(ctx context.Context, c *launchpadsdk.Client, p resolve.Path) (invoker, error) {
	res, err := newChain(c).Path(ctx, p)
	if err != nil {
		return nil, err
	}
	id := res.Target.ID
	switch res.Level {
	case resolve.LevelEnvironment:
		return func(ctx context.Context, req launchpadsdk.InvokeRequest) (launchpadsdk.InvokeResult, error) {
			return c.InvokeEnvironment(ctx, id, req)
		}, nil
	case resolve.LevelCloudBackend:
		return func(ctx context.Context, req launchpadsdk.InvokeRequest) (launchpadsdk.InvokeResult, error) {
			return c.InvokeCloudBackend(ctx, id, req)
		}, nil
	default:
		return nil, render.Usage(fmt.Errorf("%s is a %s; invoke needs an environment or cloud backend", p.String(), res.Level))
	}
}

func invokeCmd() *cobra.Command {
	var (
		method, reqPath, data string
		headers               []string
		timeout               time.Duration
		orgBackend            bool
	)
	cmd := &cobra.Command{
		Use:   "invoke [org/project/environment[/backend]]",
		Short: "Invoke a deployed function and print the proxy response event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := targetPath(args)
			if err != nil {
				return err
			}
			if orgBackend {
				if p, err = orgBackendPath(p); err != nil {
					return err
				}
			}
			req := launchpadsdk.InvokeRequest{Method: strings.ToUpper(method), Path: reqPath, Headers: http.Header{}}
			for _, h := range headers {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					return render.Usage(fmt.Errorf("header %q must be name:value", h))
				}
				req.Headers.Add(strings.TrimSpace(k), strings.TrimSpace(v))
			}
			if data != "" {
				if req.Body, err = readData(data); err != nil {
					return err
				}
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *launchpadsdk.Client) error {
				inv, err := resolveInvoker(ctx, c, p)
				if err != nil {
					return err
				}
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				outcome := proxy.FromInvocation(inv(ctx, req))
				if err := render.JSON(os.Stdout, proxy.Build(outcome)); err != nil {
					return err
				}
				if outcome.Err != nil {
					logger().Debug("invocation failed", "target", p.String(), "err", outcome.Err)
					return errReported
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVar(&reqPath, "path", "/", "request path")
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body, or @file, or @- for stdin")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header name:value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up waiting after this long")
	cmd.Flags().BoolVar(&orgBackend, "org-backend", false, "treat org/backend as an organization cloud backend")
	return cmd
}

func readData(data string) ([]byte, error) {
	switch {
	case data == "@-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(data, "@"):
		return os.ReadFile(strings.TrimPrefix(data, "@"))
	default:
		return []byte(data), nil
	}
}

func proxyCmd() *cobra.Command {
	var (
		listen     string
		orgBackend bool
	)
	cmd := &cobra.Command{
		Use:   "proxy [org/project/environment[/backend]]",
		Short: "Serve a local HTTP endpoint that forwards every request to a deployed function",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := targetPath(args)
			if err != nil {
				return err
			}
			if orgBackend {
				if p, err = orgBackendPath(p); err != nil {
					return err
				}
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *launchpadsdk.Client) error {
				inv, err := resolveInvoker(ctx, c, p)
				if err != nil {
					return err
				}
				log := logger()
				r := chi.NewRouter()
				r.Use(middleware.Recoverer)
				r.Handle("/*", forwardHandler(inv, log.With("target", p.String())))
				srv := &http.Server{Addr: listen, Handler: r}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Fprintf(os.Stderr, "Forwarding http://%s to %s\n", listen, p.String())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:3000", "listen address")
	cmd.Flags().BoolVar(&orgBackend, "org-backend", false, "treat org/backend as an organization cloud backend")
	return cmd
}
