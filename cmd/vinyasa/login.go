package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-go/vinyasa/internal/dotenv"
	"github.com/vango-go/vinyasa/pkg/credentials"
)

func newLoginCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a Gemini API key for later runs",
		Long: `Prompt for a Gemini API key and save it to the user config file so later
commands pick it up without GEMINI_API_KEY set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.SelectCredential(a.stdin, a.stderr); err != nil {
				if errors.Is(err, credentials.ErrNoCredential) {
					return errNoKey
				}
				return err
			}
			if path == "" {
				p, err := dotenv.EnsureUserFile()
				if err != nil {
					return err
				}
				path = p
			}
			if err := credentials.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved API key to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Dotenv file to write (defaults to the user config file)")
	return cmd
}
