package main

import (
	"encoding/json"
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"prayer-push-go/internal/vapid"
)

func vapidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vapid",
		Short: "VAPID key utilities",
	}

	var asJWK bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a VAPID key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, pub, err := webpush.GenerateVAPIDKeys()
			if err != nil {
				return fmt.Errorf("generate keys: %w", err)
			}
			// Round-trip through the same validation serve uses.
			if _, err := vapid.NewApplicationServer("mailto:check@example.com", pub, priv); err != nil {
				return fmt.Errorf("generated keys rejected: %w", err)
			}

			out := cmd.OutOrStdout()
			if !asJWK {
				fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
				return nil
			}

			pair, err := vapid.ConvertKeyPair(pub, priv)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(pair)
		},
	}
	generate.Flags().BoolVar(&asJWK, "jwk", false, "Print the pair as JWK JSON")

	cmd.AddCommand(generate)
	return cmd
}
