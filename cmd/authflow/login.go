package main

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/CliForge/authflow/pkg/scheme"
)

func newLoginCmd() *cobra.Command {
	var (
		username string
		password string
		clientID string
		tokenURL string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token pair",
		Long: `Log in with username and password.

By default the credentials are posted to the configured login endpoint.
With --token-url the password grant is performed against that OAuth2
token endpoint instead, and the resulting token pair is handed to the
scheme.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildScheme(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			spin.Suffix = " Logging in..."
			spin.Start()
			defer spin.Stop()

			if tokenURL != "" {
				conf := &oauth2.Config{
					ClientID: clientID,
					Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
				}
				token, err := conf.PasswordCredentialsToken(ctx, username, password)
				if err != nil {
					return fmt.Errorf("password grant failed: %w", err)
				}
				if err := s.SetUserToken(ctx, scheme.FromOAuth2Token(token)); err != nil {
					return err
				}
			} else {
				credentials := map[string]interface{}{
					"username": username,
					"password": password,
				}
				if err := s.Login(ctx, credentials); err != nil {
					return err
				}
			}

			spin.Stop()
			pterm.Success.Printfln("Logged in as %s", username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username to log in with")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password to log in with")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client id for the password grant")
	cmd.Flags().StringVar(&tokenURL, "token-url", "", "OAuth2 token endpoint for the password grant")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
