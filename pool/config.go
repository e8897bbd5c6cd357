package pool

import (
	"io"
	"os"
	"time"

	"github.com/jasonkayzk/pgpool/driver"
	"github.com/jasonkayzk/pgpool/errs"
	"gopkg.in/yaml.v3"
)

// Defaults applied by New for zero-valued optional fields.
const (
	DefaultMinSessions    = 1
	DefaultMaxSessions    = 10
	DefaultConnectTimeout = 5 * time.Second
)

// Configs for pool
type Options struct {
	// PostgreSQL connection string (required)
	Conninfo string

	// The number of sessions to create when initiating the pool
	// Also, the least session number the pool tries to maintain
	MinSessions int

	// Max session number in the pool
	MaxSessions int

	// Timeout for establishing a single connection
	ConnectTimeout time.Duration

	// Validate idle sessions on acquire and replace broken ones in place
	AutoReconnect bool

	// The driver used to open connections
	Driver driver.Driver

	// Called on the raw connection right after a session is established
	OnSessionInit func(driver.Conn)

	// Called on the raw connection right before a session is closed
	OnSessionClose func(driver.Conn)
}

// yamlOptions is the file-facing shape; the connect timeout is expressed in
// seconds there.
type yamlOptions struct {
	Conninfo       string `yaml:"conninfo"`
	MinSessions    int    `yaml:"min_sessions"`
	MaxSessions    int    `yaml:"max_sessions"`
	ConnectTimeout int    `yaml:"connect_timeout"`
	AutoReconnect  bool   `yaml:"auto_reconnect"`
}

// OptionsFromYAML decodes pool options from YAML. Driver and callbacks must
// still be set in code.
func OptionsFromYAML(r io.Reader) (*Options, error) {
	var y yamlOptions
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&y); err != nil {
		return nil, errs.NewConfigErr("decode options: " + err.Error())
	}
	return &Options{
		Conninfo:       y.Conninfo,
		MinSessions:    y.MinSessions,
		MaxSessions:    y.MaxSessions,
		ConnectTimeout: time.Duration(y.ConnectTimeout) * time.Second,
		AutoReconnect:  y.AutoReconnect,
	}, nil
}

// LoadOptionsFile reads pool options from a YAML file.
func LoadOptionsFile(path string) (*Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.NewConfigErr("open options file: " + err.Error())
	}
	defer f.Close()
	return OptionsFromYAML(f)
}

// withDefaults fills unset optional fields, leaving the receiver untouched.
func (o *Options) withDefaults() Options {
	out := *o
	if out.MinSessions == 0 {
		out.MinSessions = DefaultMinSessions
	}
	if out.MaxSessions == 0 {
		out.MaxSessions = DefaultMaxSessions
	}
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = DefaultConnectTimeout
	}
	return out
}

func (o *Options) validate() error {
	if o.Conninfo == "" {
		return errs.NewConfigErr("missing connection target")
	}
	if o.Driver == nil {
		return errs.NewConfigErr("missing driver")
	}
	if o.MaxSessions < 1 {
		return errs.NewConfigErr("max_sessions must be at least 1")
	}
	if o.MinSessions > o.MaxSessions {
		return errs.NewConfigErr("min_sessions exceeds max_sessions")
	}
	return nil
}
