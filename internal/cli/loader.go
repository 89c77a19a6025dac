package cli

import (
	"net/http"

	"github.com/roach88/ordersync/internal/config"
	"github.com/roach88/ordersync/internal/orderapi"
)

// loadSettings reads the configuration file and applies flag overrides.
func loadSettings(opts *RootOptions) (config.Settings, error) {
	file, err := config.Load(opts.Config)
	if err != nil {
		return config.Settings{}, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Server != "" {
		file.Server.BaseURL = opts.Server
	}
	if opts.Token != "" {
		file.Server.Token = opts.Token
	}

	st, err := file.Settings()
	if err != nil {
		return config.Settings{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return st, nil
}

// newClient builds the order service client for st.
func newClient(st config.Settings) *orderapi.Client {
	opts := []orderapi.Option{
		orderapi.WithHTTPClient(&http.Client{Timeout: st.RequestTimeout}),
	}
	if st.Token != "" {
		opts = append(opts, orderapi.WithBearerToken(st.Token))
	}
	return orderapi.NewClient(st.BaseURL, opts...)
}
