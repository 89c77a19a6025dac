package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool   `json:"valid"`
	Path     string `json:"path,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message,omitempty"`
	Server   string `json:"server,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Journal  string `json:"journal,omitempty"`
	Console  string `json:"console,omitempty"`
	Deletion string `json:"delete_policy,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a configuration file",
		Long: `Validate an ordersync configuration file without connecting to anything.

The file is checked against the configuration schema (unknown keys,
malformed URLs and durations) and then converted to typed settings
(duration parsing, delete policy, backoff and heartbeat bounds).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	formatter.VerboseLog("Validating %s", path)
	file, err := config.Load(path)
	if err != nil {
		return outputConfigError(formatter, path, err)
	}
	st, err := file.Settings()
	if err != nil {
		return outputConfigError(formatter, path, err)
	}

	result := ValidationResult{
		Valid:    true,
		Path:     path,
		Server:   st.BaseURL,
		Channel:  st.ChannelURL,
		Journal:  st.JournalPath,
		Console:  st.ConsoleListen,
		Deletion: string(st.DeletePolicy),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ %s is valid\n", path)
	if opts.Verbose {
		fmt.Fprintf(w, "  server:        %s\n", orNone(st.BaseURL))
		fmt.Fprintf(w, "  channel:       %s\n", orNone(st.ChannelURL))
		fmt.Fprintf(w, "  refresh:       %s\n", st.RefreshInterval)
		fmt.Fprintf(w, "  delete policy: %s\n", st.DeletePolicy)
		fmt.Fprintf(w, "  journal:       %s\n", orNone(st.JournalPath))
		fmt.Fprintf(w, "  console:       %s\n", orNone(st.ConsoleListen))
	}
	return nil
}

// outputConfigError reports err and returns exit code 1 for an invalid file,
// 2 when the file could not be read at all.
func outputConfigError(formatter *OutputFormatter, path string, err error) error {
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		_ = formatter.Error(ErrCodeCommand, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read configuration", err)
	}

	if formatter.Format == "json" {
		if encErr := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Path: path, Field: cfgErr.Path, Message: cfgErr.Message},
			Error:  &CLIError{Code: ErrCodeConfig, Message: cfgErr.Error()},
		}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		fmt.Fprintln(formatter.Writer)
		if cfgErr.Path != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", cfgErr.Path, cfgErr.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s\n", cfgErr.Message)
		}
	}
	return WrapExitError(ExitFailure, "invalid configuration", err)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
