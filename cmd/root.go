package cmd

import (
	"errors"
	"fmt"
	"os"

	"appauth/internal/authstate"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates that the user has to log in (again).
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authorization or token exchange failed.
	ExitCodeAuthFailed = 3
)

// Flags shared by every command.
var (
	configDir string
	logLevel  string
	quiet     bool
)

// rootCmd represents the base command for the appauth application.
var rootCmd = &cobra.Command{
	Use:   "appauth",
	Short: "Authorize against an OAuth 2.0 / OpenID Connect issuer",
	Long: `appauth runs the OAuth 2.0 authorization code flow with PKCE against an
OpenID Connect issuer and keeps the resulting tokens encrypted at rest.

Tokens are refreshed transparently before they expire, and resource calls
made with 'appauth call' always use a fresh access token.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "appauth version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// AuthRequiredError reports that a command needs a login that has not
// happened, or has to be repeated.
type AuthRequiredError struct {
	Reason string
	Err    error
}

func (e *AuthRequiredError) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = "authorization required"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg + ". Run: appauth login"
}

func (e *AuthRequiredError) Unwrap() error {
	return e.Err
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	switch authstate.KindOf(err) {
	case authstate.KindRefreshRequired:
		return ExitCodeAuthRequired
	case authstate.KindAuthorization, authstate.KindTokenExchange:
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default is $HOME/.config/appauth)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides the configuration)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCallCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newResetCmd())
}
