package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/fiscalstream/emissor/internal/authority"
	"github.com/fiscalstream/emissor/internal/document"
)

//go:embed schema.cue
var schemaSource string

// Defaults applied after decoding. Polling intervals mirror the reconcile
// package defaults so an empty polling block behaves like no block at all.
const (
	DefaultListenAddr       = ":8633"
	DefaultFastInterval     = 5 * time.Second
	DefaultSlowInterval     = 30 * time.Second
	DefaultFreshThreshold   = 60 * time.Second
	DefaultNotFoundGrace    = 10 * time.Second
	DefaultMinJustification = 15
)

// Duration is a time.Duration that decodes from YAML strings like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Credentials is one authority credential set.
type Credentials struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Polling holds the background reconciliation intervals.
type Polling struct {
	FastInterval   Duration `yaml:"fast_interval"`
	SlowInterval   Duration `yaml:"slow_interval"`
	FreshThreshold Duration `yaml:"fresh_threshold"`
	NotFoundGrace  Duration `yaml:"not_found_grace"`
}

// Cancellation holds the local cancellation pre-checks.
type Cancellation struct {
	MinJustification int `yaml:"min_justification"`
}

// Config is the decoded configuration file.
type Config struct {
	Environment   document.Environment `yaml:"environment"`
	Database      string               `yaml:"database"`
	ListenAddr    string               `yaml:"listen_addr"`
	WebhookSecret string               `yaml:"webhook_secret"`

	Authority map[document.Environment]Credentials `yaml:"authority"`

	Polling      Polling      `yaml:"polling"`
	Cancellation Cancellation `yaml:"cancellation"`
}

// Load reads, validates, and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the embedded schema and decodes it. The
// schema check runs first so unknown keys and malformed values are reported
// with their CUE path instead of silently decoding to zero values.
func Parse(path string, data []byte) (*Config, error) {
	if err := validateSchema(path, data); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr: DefaultListenAddr,
		Polling: Polling{
			FastInterval:   Duration(DefaultFastInterval),
			SlowInterval:   Duration(DefaultSlowInterval),
			FreshThreshold: Duration(DefaultFreshThreshold),
			NotFoundGrace:  Duration(DefaultNotFoundGrace),
		},
		Cancellation: Cancellation{MinJustification: DefaultMinJustification},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if _, ok := cfg.Authority[cfg.Environment]; !ok {
		return nil, fmt.Errorf("config: no authority credentials for environment %q", cfg.Environment)
	}
	return cfg, nil
}

func validateSchema(path string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	schema = schema.LookupPath(cue.ParsePath("#Config"))

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// ActiveCredentials returns the credential set for the configured
// environment, in the shape the authority client consumes.
func (c *Config) ActiveCredentials() authority.Credentials {
	creds := c.Authority[c.Environment]
	return authority.Credentials{
		BaseURL:      creds.BaseURL,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	}
}
