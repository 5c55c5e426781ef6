package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/studynotes-cli/config"
	"github.com/otherjamesbrown/studynotes-cli/credentials"
)

// minAPIKeyLength rejects obviously truncated pastes.
const minAPIKeyLength = 8

// KeyStore is the subset of the credential store used by the auth commands.
type KeyStore interface {
	Load() ([]string, error)
	Save(keys []string) error
	Add(key string) error
	Delete() error
	Resolve(configured []string) ([]string, string, error)
}

// AuthCommandDeps holds the dependencies for auth commands.
type AuthCommandDeps struct {
	Store      KeyStore
	LoadConfig func() (*config.CLIConfig, error)
	// ReadSecret prompts for a key without echoing it.
	ReadSecret func(prompt string) (string, error)
}

// DefaultAuthDeps returns the default dependencies for production use.
func DefaultAuthDeps() *AuthCommandDeps {
	return &AuthCommandDeps{
		Store:      credentials.NewStore(),
		LoadConfig: config.LoadConfig,
		ReadSecret: readSecret,
	}
}

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *AuthCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAuthDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Gemini API keys",
		Long: `Manage the Gemini API keys used to generate summaries.

Keys are stored in the system keyring (` + credentials.Description() + `).
Several keys may be stored; when one is rate limited the next is used.

Keys set in the config file (generation.api_keys) or in STUDYNOTES_API_KEYS
take precedence over the keyring.`,
	}

	cmd.AddCommand(newAuthSetKeyCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))
	cmd.AddCommand(newAuthClearCommand(deps))

	return cmd
}

func newAuthSetKeyCommand(deps *AuthCommandDeps) *cobra.Command {
	var (
		key     string
		replace bool
	)

	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store a Gemini API key in the keyring",
		Long: `Store a Gemini API key in the system keyring.

Without --key the key is read from the terminal without echo. By default the
key is added to those already stored; use --replace to drop the others.

Examples:
  # Prompt for the key
  studynotes auth set-key

  # Add a second key for rotation
  studynotes auth set-key --key AIza...

  # Replace all stored keys
  studynotes auth set-key --replace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthSetKey(cmd.OutOrStdout(), deps, key, replace)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "API key (prompted for when omitted)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace stored keys instead of adding")

	return cmd
}

func runAuthSetKey(w io.Writer, deps *AuthCommandDeps, key string, replace bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		if deps.ReadSecret == nil {
			return fmt.Errorf("no API key provided")
		}
		read, err := deps.ReadSecret("Gemini API key: ")
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
		key = strings.TrimSpace(read)
	}
	if err := validateAPIKey(key); err != nil {
		return err
	}

	var err error
	if replace {
		err = deps.Store.Save([]string{key})
	} else {
		err = deps.Store.Add(key)
	}
	if err != nil {
		return fmt.Errorf("storing API key: %w", err)
	}

	fmt.Fprintf(w, "Stored API key %s (id %s) in %s\n",
		credentials.MaskAPIKey(key), credentials.KeyID(key), credentials.Description())
	return nil
}

// validateAPIKey performs basic validation on a key.
func validateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("API key is empty")
	}
	if len(key) < minAPIKeyLength {
		return fmt.Errorf("API key is too short (minimum %d characters)", minAPIKeyLength)
	}
	if strings.ContainsAny(key, " \t\n,") {
		return fmt.Errorf("API key must not contain whitespace or commas")
	}
	return nil
}

func newAuthStatusCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which API keys will be used",
		Long: `Show where the API keys come from and list them masked.

Examples:
  studynotes auth status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd.OutOrStdout(), deps)
		},
	}
}

func runAuthStatus(w io.Writer, deps *AuthCommandDeps) error {
	var configured []string
	if deps.LoadConfig != nil {
		cfg, err := deps.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		configured = cfg.Generation.APIKeys
	}

	keys, source, err := deps.Store.Resolve(configured)
	if err != nil {
		fmt.Fprintf(w, "Keyring: unavailable (%v)\n", err)
	}

	switch source {
	case credentials.SourceConfig:
		fmt.Fprintln(w, "Source: config file or STUDYNOTES_API_KEYS")
	case credentials.SourceKeyring:
		fmt.Fprintf(w, "Source: %s\n", credentials.Description())
	default:
		fmt.Fprintln(w, "Not configured")
		fmt.Fprintln(w, "\nRun 'studynotes auth set-key' to store a Gemini API key.")
		return nil
	}

	fmt.Fprintf(w, "Keys: %d\n", len(keys))
	for i, k := range keys {
		fmt.Fprintf(w, "  %d. %s  (id %s)\n", i+1, credentials.MaskAPIKey(k), credentials.KeyID(k))
	}
	return nil
}

func newAuthClearCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove stored API keys from the keyring",
		Long: `Remove all Gemini API keys from the system keyring.

Keys in the config file or environment are not affected.

Examples:
  studynotes auth clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Store.Delete(); err != nil {
				return fmt.Errorf("clearing API keys: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed stored API keys")
			return nil
		},
	}
}

// readSecret reads a line from the terminal without echo, falling back to a
// plain read when stdin is not a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err == nil {
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}
