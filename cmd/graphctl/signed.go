package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	goGraph "github.com/MrEthical07/goGraph"
	"github.com/MrEthical07/goGraph/signature"
)

func newSignCmd(root *rootOptions) *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Produce a signed_request for a JSON payload (stdin when --payload is empty)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := root.secret()
			if err != nil {
				return err
			}

			raw := payload
			if raw == "" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				raw = string(b)
			}

			var body map[string]any
			if err := json.Unmarshal([]byte(raw), &body); err != nil {
				return fmt.Errorf("%w: payload must be a JSON object: %v", goGraph.ErrInvalidArgument, err)
			}

			signed, err := signature.SignRequest(body, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "JSON object to sign")
	return cmd
}

func newVerifyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <signed_request>",
		Short: "Verify a signed_request and print its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := root.secret()
			if err != nil {
				return err
			}

			v, err := signature.VerifySignedRequest(strings.TrimSpace(args[0]), secret)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
}

// secret returns the application secret without requiring a full configuration.
func (o *rootOptions) secret() (string, error) {
	fc, err := loadConfig(o.configPath, lookupEnv)
	if err != nil {
		return "", err
	}
	if fc.AppSecret == "" {
		return "", fmt.Errorf("%w: app secret is required (%s)", goGraph.ErrInvalidArgument, envAppSecret)
	}
	return fc.AppSecret, nil
}
