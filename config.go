package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Seednode/liedetector/deploy"
	"github.com/Seednode/liedetector/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "LIEDETECTOR"

type Config struct {
	apiURL         string
	bind           string
	data           string
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	storage        string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	deploy deployConfig
}

type deployConfig struct {
	appName     string
	dryRun      bool
	githubOwner string
	githubToken string
	region      string
	repository  string
	secretName  string
	viteAPIURL  string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if !store.ValidBackend(c.storage) {
		return fmt.Errorf("invalid storage backend (must be one of %s): %q", strings.Join(store.Backends, ", "), c.storage)
	}
	if c.storage != "memory" && strings.TrimSpace(c.data) == "" {
		return fmt.Errorf("--data is required for the %s storage backend", c.storage)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout: %s", c.sessionTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// scoringURL falls back to the variable the web build uses.
func (c *Config) scoringURL() string {
	if c.apiURL != "" {
		return c.apiURL
	}
	return os.Getenv(deploy.APIURLVariable)
}

// loadEnvFile reads KEY=value pairs into the environment without
// overriding variables that are already set. A missing file is ignored.
func loadEnvFile() error {
	path := os.Getenv(envPrefix + "_ENV_FILE")
	if path == "" {
		path = ".env"
	}

	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func bindFlags(fs *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	envErr := loadEnvFile()

	cmd := &cobra.Command{
		Use:           "liedetector",
		Short:         "Two truths and a lie: write three statements, guess the lie in everyone else's.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.StringVar(&cfg.apiURL, "api-url", "", "base url of the external scoring api (env: LIEDETECTOR_API_URL, falls back to VITE_API_URL)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LIEDETECTOR_BIND)")
	fs.StringVarP(&cfg.data, "data", "d", "data", "data directory, sqlite file or postgres dsn, depending on --storage (env: LIEDETECTOR_DATA)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LIEDETECTOR_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: LIEDETECTOR_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: LIEDETECTOR_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle player sessions are unloaded from memory (env: LIEDETECTOR_SESSION_TIMEOUT)")
	fs.StringVarP(&cfg.storage, "storage", "s", "file", "storage backend: memory, file, sqlite or postgres (env: LIEDETECTOR_STORAGE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: LIEDETECTOR_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: LIEDETECTOR_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: LIEDETECTOR_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: LIEDETECTOR_VERSION)")

	bindFlags(fs)

	cmd.AddCommand(newDeployCmd(cfg, &envErr))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("liedetector v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func newDeployCmd(cfg *Config, envErr *error) *cobra.Command {
	dc := &cfg.deploy

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create the Amplify app that builds and hosts the web client.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *envErr != nil {
				return *envErr
			}
			return runDeploy(cmd, cfg)
		},
	}

	fs := cmd.Flags()

	fs.StringVar(&dc.appName, "app-name", deploy.DefaultAppName, "name of the amplify app (env: LIEDETECTOR_APP_NAME)")
	fs.BoolVar(&dc.dryRun, "dry-run", false, "print the deployment descriptor and exit (env: LIEDETECTOR_DRY_RUN)")
	fs.StringVar(&dc.githubOwner, "github-owner", deploy.DefaultOwner, "github user or organization owning the repository (env: LIEDETECTOR_GITHUB_OWNER)")
	fs.StringVar(&dc.githubToken, "github-token", "", "github personal access token, required (env: LIEDETECTOR_GITHUB_TOKEN)")
	fs.StringVar(&dc.region, "region", "", "aws region, defaults to the aws environment (env: LIEDETECTOR_REGION)")
	fs.StringVar(&dc.repository, "repository", deploy.DefaultRepository, "github repository name (env: LIEDETECTOR_REPOSITORY)")
	fs.StringVar(&dc.secretName, "secret-name", deploy.DefaultSecretName, "secrets manager name for the github token (env: LIEDETECTOR_SECRET_NAME)")
	fs.StringVar(&dc.viteAPIURL, "vite-api-url", "", "scoring api url injected into the web build as VITE_API_URL (env: LIEDETECTOR_VITE_API_URL)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: LIEDETECTOR_VERBOSE)")

	bindFlags(fs)

	return cmd
}
