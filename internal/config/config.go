// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Session  Session  `yaml:"session"`
	Storage  Storage  `yaml:"storage"`
	Callback Callback `yaml:"callback"`
}

type Session struct {
	ApplicationName   string              `yaml:"applicationName" default:"pkce-session"`
	AuthenticationURL string              `yaml:"authenticationURL"`
	ClientID          commoncfg.SourceRef `yaml:"clientID"`
	APIURL            string              `yaml:"apiURL"`
	HTTPTimeout       time.Duration       `yaml:"httpTimeout" default:"30s"`
	ClientAuth        ClientAuth          `yaml:"clientAuth"`
	Refresh           Refresh             `yaml:"refresh"`
}

type ClientAuthType string

const (
	ClientAuthNone ClientAuthType = "none"
	ClientAuthMTLS ClientAuthType = "mtls"
)

// ClientAuth configures the transport towards the token endpoint. A public
// PKCE client needs none; mtls presents a client certificate.
type ClientAuth struct {
	Type ClientAuthType  `yaml:"type" default:"none"`
	MTLS *commoncfg.MTLS `yaml:"mtls"`
}

type Refresh struct {
	InitialBackoff time.Duration `yaml:"initialBackoff" default:"1s"`
	MaxBackoff     time.Duration `yaml:"maxBackoff" default:"5m"`
	MaxFailures    int           `yaml:"maxFailures" default:"10"`
}

type StorageType string

const (
	StorageMemory  StorageType = "memory"
	StorageFile    StorageType = "file"
	StorageValKey  StorageType = "valkey"
	StorageKeyring StorageType = "keyring"
)

type Storage struct {
	Type StorageType `yaml:"type" default:"file"`

	// TTL bounds the lifetime of a stored record where the substrate
	// supports it. Zero keeps records until logout.
	TTL     time.Duration `yaml:"ttl" default:"0s"`
	File    FileStorage   `yaml:"file"`
	ValKey  ValKey        `yaml:"valkey"`
	Keyring Keyring       `yaml:"keyring"`
}

type FileStorage struct {
	Directory string `yaml:"directory" default:"$HOME/.pkce-session/sessions"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
	Prefix    string              `yaml:"prefix" default:"pkce-session"`
}

type Keyring struct {
	Service string `yaml:"service" default:"pkce-session"`
}

// Callback configures the loopback server receiving the authorization
// redirect. Its address is the origin registered as redirect URI.
type Callback struct {
	Address         string        `yaml:"address" default:"127.0.0.1:8765"`
	LoginTimeout    time.Duration `yaml:"loginTimeout" default:"5m"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
	OpenBrowser     bool          `yaml:"openBrowser" default:"true"`
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	var errs []error

	if c.Session.ApplicationName == "" {
		errs = append(errs, errors.New("session.applicationName is required"))
	}

	u, err := url.Parse(c.Session.AuthenticationURL)
	switch {
	case c.Session.AuthenticationURL == "":
		errs = append(errs, errors.New("session.authenticationURL is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("session.authenticationURL: %w", err))
	case u.Scheme == "" || u.Host == "":
		errs = append(errs, fmt.Errorf("session.authenticationURL %q must be absolute", c.Session.AuthenticationURL))
	}

	switch c.Session.ClientAuth.Type {
	case ClientAuthNone, "":
	case ClientAuthMTLS:
		if c.Session.ClientAuth.MTLS == nil {
			errs = append(errs, errors.New("session.clientAuth.mtls is required for mtls client auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.clientAuth.type %q", c.Session.ClientAuth.Type))
	}

	switch c.Storage.Type {
	case StorageMemory, StorageFile, StorageValKey, StorageKeyring:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", c.Storage.Type))
	}

	if c.Callback.Address == "" {
		errs = append(errs, errors.New("callback.address is required"))
	}

	return errors.Join(errs...)
}
