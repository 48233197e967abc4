package main

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/CliForge/authflow/pkg/scheme"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential state",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildScheme(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := s.Mount(ctx); err != nil {
				return err
			}

			now := time.Now()
			rows := pterm.TableData{
				{"Credential", "State"},
				{"Access token", credentialState(s.Tokens().Token(), s.Expirations().Access(), now)},
				{"Refresh token", credentialState(s.Tokens().RefreshToken(), s.Expirations().Refresh(), now)},
				{"Client id", presence(s.Tokens().ClientID())},
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return err
			}

			if s.Session().LoggedIn() {
				pterm.Success.Printfln("Session: logged in")
			} else {
				pterm.Info.Printfln("Session: logged out")
			}
			return nil
		},
	}
}

func credentialState(cred scheme.Credential, exp scheme.Expiry, now time.Time) string {
	if !cred.Present() {
		return presence(cred)
	}
	if exp.Expired(now) {
		return "expired"
	}
	if exp.Present() {
		remaining := time.Duration(exp.At-now.UnixMilli()) * time.Millisecond
		return "valid for " + remaining.Truncate(time.Second).String()
	}
	return "present"
}

func presence(cred scheme.Credential) string {
	switch cred.Status {
	case scheme.StatusPresent:
		return "present"
	case scheme.StatusCleared:
		return "cleared"
	default:
		return "not set"
	}
}
