package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind             string
	generateCooldown time.Duration
	generateTimeout  time.Duration
	generatorKey     string
	generatorModel   string
	generatorURL     string
	jwtSecret        string
	port             int
	prefix           string
	profile          bool
	redis            string
	sessionTimeout   time.Duration
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.jwtSecret == "" {
		return errors.New("--jwt-secret must be provided (env: LOUNGE_JWT_SECRET)")
	}
	if c.generateTimeout <= 0 {
		return fmt.Errorf("invalid generate timeout: %s", c.generateTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LOUNGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "sync-lounge",
		Short:         "A real-time coordination server for two-person shared rooms.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LOUNGE_BIND)")
	fs.DurationVar(&cfg.generateCooldown, "generate-cooldown", 2*time.Second, "per-room cooldown after a prompt generation completes (env: LOUNGE_GENERATE_COOLDOWN)")
	fs.DurationVar(&cfg.generateTimeout, "generate-timeout", 8*time.Second, "hard deadline for a single prompt generation call (env: LOUNGE_GENERATE_TIMEOUT)")
	fs.StringVar(&cfg.generatorKey, "generator-key", "", "api key for the content generator (env: LOUNGE_GENERATOR_KEY)")
	fs.StringVar(&cfg.generatorModel, "generator-model", "gemini-2.5-flash", "model name requested from the content generator (env: LOUNGE_GENERATOR_MODEL)")
	fs.StringVar(&cfg.generatorURL, "generator-url", "https://generativelanguage.googleapis.com", "base url of the content generator (env: LOUNGE_GENERATOR_URL)")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", "", "shared secret for verifying identity tokens (env: LOUNGE_JWT_SECRET)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LOUNGE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: LOUNGE_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: LOUNGE_PROFILE)")
	fs.StringVar(&cfg.redis, "redis", "", "address of the redis round-history store, empty to disable (env: LOUNGE_REDIS)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 0, "time before idle rooms are reaped, 0 to keep rooms forever (env: LOUNGE_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: LOUNGE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: LOUNGE_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: LOUNGE_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: LOUNGE_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("sync-lounge v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
