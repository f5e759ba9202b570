package cmd

import (
	"context"
	"fmt"
	"time"

	"appauth/internal/authflow"
	"appauth/pkg/logging"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type loginOptions struct {
	issuer    string
	clientID  string
	scope     string
	port      int
	noBrowser bool
	timeout   time.Duration
}

func newLoginCmd() *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize against the configured issuer",
		Long: `Run the authorization code flow with PKCE against the configured issuer.

A loopback callback server receives the authorization response; the code is
then exchanged for tokens, which are stored encrypted.

Examples:
  appauth login                                  # Use issuer and client from config.yaml
  appauth login --issuer https://accounts.example.com --client-id cli
  appauth login --no-browser                     # Print the URL instead of opening it`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.issuer, "issuer", "", "Issuer URL (overrides the configuration)")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "Client identifier (overrides the configuration)")
	cmd.Flags().StringVar(&opts.scope, "scope", "", "Space separated scopes (overrides the configuration)")
	cmd.Flags().IntVar(&opts.port, "port", -1, "Loopback callback port, 0 for any free port (overrides the configuration)")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Do not open a browser, only print the authorization URL")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", authflow.CallbackTimeout, "How long to wait for the browser to return")
	return cmd
}

func runLogin(ctx context.Context, opts *loginOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	params := authflow.AuthorizationParams{
		Issuer:   firstNonEmpty(opts.issuer, a.cfg.Issuer),
		ClientID: firstNonEmpty(opts.clientID, a.cfg.ClientID),
		Scope:    firstNonEmpty(opts.scope, a.cfg.Scope),
	}
	if params.Issuer == "" || params.ClientID == "" {
		return fmt.Errorf("issuer and client ID are required: set them in %s/config.yaml, via APPAUTH_ISSUER and APPAUTH_CLIENT_ID, or with --issuer and --client-id", a.dir)
	}

	port := a.cfg.CallbackPort
	if opts.port >= 0 {
		port = opts.port
	}
	callback := authflow.NewCallbackServer(port)
	redirectURI, err := callback.Start(ctx)
	if err != nil {
		return err
	}
	defer callback.Stop()
	params.RedirectURI = redirectURI

	req, err := a.service.StartAuthorization(ctx, params)
	if err != nil {
		return err
	}

	if opts.noBrowser {
		fmt.Printf("Open this URL in your browser to continue:\n\n  %s\n\n", req.URL)
	} else {
		progressf("Opening browser for authorization...")
		if err := authflow.OpenBrowser(req.URL); err != nil {
			logging.Warn(logging.SubsystemAuthFlow, "Failed to open browser: %v", err)
			fmt.Printf("Could not open a browser. Open this URL to continue:\n\n  %s\n\n", req.URL)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	var s *spinner.Spinner
	if !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for authorization in the browser..."
		s.Start()
	}
	values, err := callback.WaitForCallback(waitCtx)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		if waitCtx.Err() == context.DeadlineExceeded {
			return &AuthRequiredError{Reason: fmt.Sprintf("no authorization response within %s", opts.timeout)}
		}
		return err
	}

	if err := a.service.HandleAuthorizationCallback(ctx, values); err != nil {
		return err
	}

	state, err := a.service.State(ctx)
	if err != nil {
		return err
	}
	progressf("%s Authorized against %s", text.FgGreen.Sprint("✓"), state.Issuer)
	if state.AccessTokenExpirationTime != nil {
		progressf("  Access token expires %s", formatExpiry(*state.AccessTokenExpirationTime, time.Now()))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
