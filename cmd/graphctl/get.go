package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	goGraph "github.com/MrEthical07/goGraph"
	"github.com/MrEthical07/goGraph/transport"
)

func newGetCmd(root *rootOptions) *cobra.Command {
	var (
		token    string
		appToken bool
		method   string
		params   []string
	)

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Call a graph path (or method/<name> on the REST endpoint) and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verb := transport.Verb(strings.ToUpper(method))
			switch verb {
			case transport.GET, transport.POST, transport.DELETE:
			default:
				return fmt.Errorf("%w: unsupported method %q", goGraph.ErrInvalidArgument, method)
			}

			callArgs, err := parseParams(params)
			if err != nil {
				return err
			}

			app, _, err := root.buildApp(cmd, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			if appToken {
				token = app.AppAccessToken()
			}
			client, err := app.NewAPIClient(token)
			if err != nil {
				return err
			}

			v, err := client.Call(cmd.Context(), args[0], verb, callArgs)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "user access token")
	cmd.Flags().BoolVar(&appToken, "app-token", false, "authenticate as the application")
	cmd.Flags().StringVarP(&method, "method", "X", "GET", "GET, POST or DELETE")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "key=value argument, repeatable")
	return cmd
}

func parseParams(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: param %q is not key=value", goGraph.ErrInvalidArgument, kv)
		}
		out[k] = v
	}
	return out, nil
}

func newAppTokenCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "app-token",
		Short: "Fetch an application token through the client-credentials grant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := root.buildApp(cmd, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			token, err := app.FetchAppAccessToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
