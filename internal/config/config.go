// Package config loads the ordersync YAML configuration.
//
// A file is decoded with yaml.v3, validated against the embedded CUE schema
// (unknown keys, malformed durations and URLs are rejected with their path),
// layered over Default and finally converted to typed Settings.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ordersync/internal/channel"
	"github.com/roach88/ordersync/internal/engine"
)

//go:embed schema.cue
var schemaCUE string

// File mirrors the YAML document.
type File struct {
	Server   Server   `yaml:"server"`
	Channel  Channel  `yaml:"channel"`
	Snapshot Snapshot `yaml:"snapshot"`
	Journal  Journal  `yaml:"journal"`
	Console  Console  `yaml:"console"`
}

type Server struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

type Channel struct {
	URL               string `yaml:"url"`
	Topic             string `yaml:"topic"`
	Login             string `yaml:"login"`
	Passcode          string `yaml:"passcode"`
	MinBackoff        string `yaml:"min_backoff"`
	MaxBackoff        string `yaml:"max_backoff"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	HeartbeatTimeout  string `yaml:"heartbeat_timeout"`
}

type Snapshot struct {
	RefreshInterval string `yaml:"refresh_interval"`
	DeletePolicy    string `yaml:"delete_policy"`
}

type Journal struct {
	// Path of the SQLite journal; empty disables journaling.
	Path string `yaml:"path"`
}

type Console struct {
	// Listen address of the console API; empty disables it.
	Listen string `yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() File {
	return File{
		Server: Server{
			BaseURL: "http://localhost:8080",
			Timeout: "10s",
		},
		Channel: Channel{
			URL:               "ws://localhost:8080/ws",
			Topic:             channel.DefaultTopic,
			MinBackoff:        "200ms",
			MaxBackoff:        "30s",
			HeartbeatInterval: "10s",
			HeartbeatTimeout:  "30s",
		},
		Snapshot: Snapshot{
			RefreshInterval: "5m",
			DeletePolicy:    string(engine.DeleteNever),
		},
	}
}

// Error is a configuration problem, located by path when known.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("config: %s", e.Message)
}

// Load reads path and returns the validated configuration layered over
// Default. An empty path returns Default.
func Load(path string) (File, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates a YAML document and layers it over Default.
func Parse(data []byte) (File, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return File{}, &Error{Message: fmt.Sprintf("invalid yaml: %v", err)}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validate(doc); err != nil {
		return File{}, err
	}

	f := Default()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, &Error{Message: fmt.Sprintf("decode: %v", err)}
	}
	return f, nil
}

// validate checks doc against the #Config schema.
func validate(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	data := ctx.Encode(doc)
	if err := data.Err(); err != nil {
		return &Error{Message: fmt.Sprintf("encode: %v", err)}
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError reports the first schema violation with its path.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &Error{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

// Settings is the typed form of a File.
type Settings struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration

	ChannelURL string
	Login      string
	Passcode   string
	Channel    channel.Config

	RefreshInterval time.Duration
	DeletePolicy    engine.DeletePolicy

	JournalPath   string
	ConsoleListen string
}

// Settings converts f, parsing durations and checking cross-field rules.
func (f File) Settings() (Settings, error) {
	var errs []error
	dur := func(path, s string) time.Duration {
		if s == "" {
			return 0
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, &Error{Path: path, Message: err.Error()})
		}
		return d
	}

	st := Settings{
		BaseURL:        f.Server.BaseURL,
		Token:          f.Server.Token,
		RequestTimeout: dur("server.timeout", f.Server.Timeout),
		ChannelURL:     f.Channel.URL,
		Login:          f.Channel.Login,
		Passcode:       f.Channel.Passcode,
		Channel: channel.Config{
			Topic:             f.Channel.Topic,
			MinBackoff:        dur("channel.min_backoff", f.Channel.MinBackoff),
			MaxBackoff:        dur("channel.max_backoff", f.Channel.MaxBackoff),
			HeartbeatInterval: dur("channel.heartbeat_interval", f.Channel.HeartbeatInterval),
			HeartbeatTimeout:  dur("channel.heartbeat_timeout", f.Channel.HeartbeatTimeout),
			Jitter:            channel.DefaultConfig().Jitter,
		},
		RefreshInterval: dur("snapshot.refresh_interval", f.Snapshot.RefreshInterval),
		DeletePolicy:    engine.DeletePolicy(f.Snapshot.DeletePolicy),
		JournalPath:     f.Journal.Path,
		ConsoleListen:   f.Console.Listen,
	}
	if len(errs) > 0 {
		return Settings{}, errs[0]
	}

	switch st.DeletePolicy {
	case engine.DeleteNever, engine.DeleteSoft:
	case "":
		st.DeletePolicy = engine.DeleteNever
	default:
		return Settings{}, &Error{Path: "snapshot.delete_policy", Message: fmt.Sprintf("unknown policy %q", st.DeletePolicy)}
	}
	if st.Channel.MaxBackoff < st.Channel.MinBackoff {
		return Settings{}, &Error{Path: "channel.max_backoff", Message: "must not be less than min_backoff"}
	}
	if st.Channel.HeartbeatTimeout > 0 && st.Channel.HeartbeatTimeout <= st.Channel.HeartbeatInterval {
		return Settings{}, &Error{Path: "channel.heartbeat_timeout", Message: "must exceed heartbeat_interval"}
	}
	return st, nil
}
