package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/smnsjas/go-xrm/security"
	"github.com/smnsjas/go-xrm/soap"
)

// SecretEnv names the environment variable LoadConfig reads the secret
// from when the file does not set one.
const SecretEnv = "XRM_SECRET"

// validate caches struct metadata; share one instance.
var validate = validator.New()

// Config holds configuration for an organization service client.
type Config struct {
	// Endpoint is the organization service URL, e.g.
	// https://crm.contoso.com/contoso/XRMServices/2011/Organization.svc.
	Endpoint string `yaml:"endpoint" validate:"required,url"`

	// Principal is DOMAIN\user, user@domain, or empty for the current
	// identity.
	Principal string `yaml:"principal"`

	// Secret is the password for Principal. It is ignored for the current
	// identity.
	Secret string `yaml:"secret"`

	// TargetName is the SPN (or UPN) of the service account.
	TargetName string `yaml:"target_name" validate:"required_if=Mechanism kerberos"`

	// Timeout bounds each operation, including any negotiation it triggers.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// ClientVersion is sent as the SdkClientVersion header.
	ClientVersion string `yaml:"client_version" validate:"required"`

	// CallerID impersonates another system user.
	CallerID string `yaml:"caller_id" validate:"omitempty,uuid"`

	// Mechanism selects the security provider.
	Mechanism security.Mechanism `yaml:"mechanism" validate:"omitempty,oneof=auto ntlm kerberos sspi"`

	// Kerberos settings.
	Realm        string `yaml:"realm"`
	Krb5ConfPath string `yaml:"krb5_conf"`
	KeytabPath   string `yaml:"keytab"`
	CCachePath   string `yaml:"ccache"`

	// MaxLegs bounds the negotiation. Zero uses the default.
	MaxLegs int `yaml:"max_legs" validate:"gte=0"`

	// InsecureSkipVerify skips TLS certificate verification.
	// WARNING: Only use for testing.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       120 * time.Second,
		ClientVersion: soap.DefaultClientVersion,
		Mechanism:     security.MechanismAuto,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q: %w", fe.Namespace(), fe.Tag(), err)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// callerID returns the parsed CallerID, or uuid.Nil.
func (c *Config) callerID() uuid.UUID {
	id, err := uuid.Parse(c.CallerID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (c *Config) providerConfig() security.ProviderConfig {
	return security.ProviderConfig{
		Mechanism:    c.Mechanism,
		Realm:        c.Realm,
		Krb5ConfPath: c.Krb5ConfPath,
		KeytabPath:   c.KeytabPath,
		CCachePath:   c.CCachePath,
	}
}

// LoadConfig reads a YAML configuration file over DefaultConfig. The secret
// falls back to the XRM_SECRET environment variable.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - config path comes from the operator
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Secret == "" {
		cfg.Secret = os.Getenv(SecretEnv)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
