package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"appauth/internal/authstate"
	"appauth/internal/persistence"
	"appauth/pkg/oauth"
	pkgstrings "appauth/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the authorization state",
		Long: `Show the stored authorization state: the issuer, whether tokens are
present, when the access token expires and the last error, if any.

Token values are never printed.

Examples:
  appauth status          # Summary
  appauth status --full   # Also show endpoints and ID token claims`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), full)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Show endpoints and ID token claims")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, full bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.service.State(ctx)
	if err != nil {
		return err
	}
	snap, _ := a.gateway.LoadSnapshot(ctx)

	renderStatus(out, state, snap, full, time.Now())
	return nil
}

func renderStatus(out io.Writer, s *authstate.State, snap *persistence.Snapshot, full bool, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("FIELD"), text.FgHiCyan.Sprint("VALUE")})

	t.AppendRow(table.Row{"Phase", formatPhase(s.Phase())})
	t.AppendRow(table.Row{"Issuer", pkgstrings.Cell(s.Issuer)})
	t.AppendRow(table.Row{"Client ID", pkgstrings.Cell(s.ClientID)})
	t.AppendRow(table.Row{"Scope", pkgstrings.Cell(s.Scope)})

	access := "none"
	if s.AccessToken != "" {
		access = "present"
		if s.AccessTokenExpirationTime != nil {
			access = "expires " + formatExpiry(*s.AccessTokenExpirationTime, now)
		}
	}
	t.AppendRow(table.Row{"Access token", access})

	refresh := text.FgYellow.Sprint("not available")
	if s.RefreshToken != "" {
		refresh = text.FgGreen.Sprint("available")
	}
	t.AppendRow(table.Row{"Refresh token", refresh})

	if s.NeedsTokenRefresh {
		t.AppendRow(table.Row{"Needs refresh", "yes"})
	}
	if e := s.LastError(); e != nil {
		t.AppendRow(table.Row{"Last error", text.FgRed.Sprint(pkgstrings.Cell(e.Error()))})
	}
	if s.PendingAuthorizationRequest != nil {
		t.AppendRow(table.Row{"Pending request", "since " + s.PendingAuthorizationRequest.CreatedAt.Local().Format(time.RFC3339)})
	}

	if full {
		if sc := s.ServiceConfiguration; sc != nil {
			t.AppendSeparator()
			t.AppendRow(table.Row{"Authorization endpoint", pkgstrings.Cell(sc.AuthorizationEndpoint)})
			t.AppendRow(table.Row{"Token endpoint", pkgstrings.Cell(sc.TokenEndpoint)})
			t.AppendRow(table.Row{"Revocation endpoint", pkgstrings.Cell(sc.RevocationEndpoint)})
			t.AppendRow(table.Row{"Userinfo endpoint", pkgstrings.Cell(sc.UserinfoEndpoint)})
		}
		if s.IDToken != "" {
			t.AppendSeparator()
			if claims, err := oauth.ParseIDTokenClaims(s.IDToken); err != nil {
				t.AppendRow(table.Row{"ID token", text.FgYellow.Sprintf("unreadable: %v", err)})
			} else {
				t.AppendRow(table.Row{"Subject", pkgstrings.Cell(claims.Subject)})
				t.AppendRow(table.Row{"Email", pkgstrings.Cell(claims.Email)})
				t.AppendRow(table.Row{"Name", pkgstrings.Cell(claims.Name)})
				if !claims.ExpiresAt.IsZero() {
					t.AppendRow(table.Row{"ID token expiry", formatExpiry(claims.ExpiresAt, now)})
				}
			}
		}
	}

	if snap != nil {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Last activity", snap.SavedAt.Local().Format(time.RFC3339)})
		if snap.LastMessage != "" {
			t.AppendRow(table.Row{"Last message", pkgstrings.Cell(snap.LastMessage)})
		}
	}

	t.Render()
}

func formatPhase(p authstate.Phase) string {
	switch p {
	case authstate.PhaseAuthorized:
		return text.FgGreen.Sprint(string(p))
	case authstate.PhaseNeedsReauthorization:
		return text.FgRed.Sprint(string(p))
	default:
		return text.FgYellow.Sprint(string(p))
	}
}

// formatExpiry renders t relative to now, e.g. "in 4m0s" or "3m0s ago".
func formatExpiry(t, now time.Time) string {
	d := t.Sub(now).Truncate(time.Second)
	if d >= 0 {
		return fmt.Sprintf("in %s (%s)", d, t.Local().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s ago (%s)", -d, t.Local().Format(time.RFC3339))
}
