package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "call URL",
		Short: "Make an authenticated request through the scheme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildScheme(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := s.Mount(ctx); err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(ctx, method, args[0], nil)
			if err != nil {
				return err
			}

			resp, err := s.Client().Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			pterm.Info.Printfln("%s %s -> %s", method, args[0], resp.Status)
			if len(body) > 0 {
				fmt.Println(string(body))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method to use")

	return cmd
}
