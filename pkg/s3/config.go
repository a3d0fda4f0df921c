package s3

import (
	"strings"
	"time"

	"github.com/s3pipe/s3pipe/internal/transport"
	"github.com/s3pipe/s3pipe/pkg/errors"
)

const (
	// DefaultHost is the endpoint used when the config leaves Host
	// empty.
	DefaultHost = "s3.amazonaws.com"

	// DefaultWalrusPort is assumed for Walrus endpoints with no
	// explicit port.
	DefaultWalrusPort = "8773"

	// DefaultTimeout bounds one whole request/response exchange.
	DefaultTimeout = transport.DefaultTimeout

	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = transport.DefaultConnectTimeout
)

// Config carries everything a connection needs to reach and sign
// against one endpoint. A connection copies it at construction;
// later changes to the source value have no effect.
type Config struct {
	AccKey string `yaml:"access_key" json:"access_key"`
	SecKey string `yaml:"secret_key" json:"secret_key"`

	// Host selects the endpoint; empty means DefaultHost. Regional
	// Amazon endpoints of the form s3-<region>.amazonaws.com carry
	// the region used for bucket creation.
	Host string `yaml:"host" json:"host"`
	Port string `yaml:"port" json:"port"`

	IsHTTPS  bool `yaml:"https" json:"https"`
	IsWalrus bool `yaml:"walrus" json:"walrus"`

	// Proxy is a host[:port] forwarded to every request.
	Proxy string `yaml:"proxy" json:"proxy"`

	// CACertFile is a PEM bundle path, "none" to disable server
	// verification, or empty for the built-in roots.
	CACertFile string `yaml:"ca_cert_file" json:"ca_cert_file"`

	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// NewDefaultConfig returns a config with the endpoint and timing
// defaults filled in. Credentials must still be supplied.
func NewDefaultConfig() *Config {
	return &Config{
		Host:           DefaultHost,
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// Validate checks the fields a connection cannot repair on its own.
func (c *Config) Validate() error {
	if c.AccKey == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "access key is required")
	}
	if c.SecKey == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "secret key is required")
	}
	if c.Timeout < 0 || c.ConnectTimeout < 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "timeouts must not be negative")
	}
	return nil
}

// effectiveHost returns the host with the default applied.
func (c *Config) effectiveHost() string {
	if c.Host == "" {
		return DefaultHost
	}
	return c.Host
}

// effectivePort applies the Walrus port default.
func (c *Config) effectivePort() string {
	if c.Port == "" && c.IsWalrus {
		return DefaultWalrusPort
	}
	return c.Port
}

// regionFromHost extracts the region from a regional Amazon endpoint:
// s3-us-west-2.amazonaws.com yields "us-west-2", the default host
// yields "".
func regionFromHost(host string, isWalrus bool) string {
	if isWalrus {
		return ""
	}
	const prefix = "s3-"
	if !strings.HasPrefix(host, prefix) {
		return ""
	}
	rest := host[len(prefix):]
	if i := strings.Index(rest, "."+strings.TrimPrefix(DefaultHost, "s3.")); i > 0 {
		return rest[:i]
	}
	return ""
}
