package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildScheme(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := s.Mount(ctx); err != nil {
				return err
			}
			if err := s.Logout(ctx); err != nil {
				return err
			}

			pterm.Success.Printfln("Logged out")
			return nil
		},
	}
}
