package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/meetingbrief/internal/auth"
)

func newSessionKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-key",
		Short: "Generate a value for MEETINGBRIEF_SESSION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), auth.KeyToBase64(key))
			return err
		},
	}
}
