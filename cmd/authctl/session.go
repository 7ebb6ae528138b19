package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"authgate/pkg/client"
)

// apiClient sends --call requests. The client library's interceptor is
// registered on it once the session exists.
var apiClient = &http.Client{}

func sessionCmd(flags *globalFlags) *cobra.Command {
	var (
		email    string
		password string
		register bool
		keep     bool
		mirror   string
		call     string
	)
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Sign in through the gateway and show the resulting session",
		Long: `Session signs in with the client library, prints the current user and a
token prefix, then logs out again unless --keep is set. The password is read
from AUTHCTL_PASSWORD when --password is empty. --call issues a GET against
the backend with the session's bearer token attached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("AUTHCTL_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and a password are required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			opts := []client.Option{client.WithLogger(flags.logger())}
			if mirror != "" {
				opts = append(opts, client.WithMirror(client.FileMirror{Path: mirror}))
			}
			svc, err := client.New(flags.backendURL, flags.appURL, opts...)
			if err != nil {
				return err
			}

			ok := svc.Login
			verb := "login"
			if register {
				ok = svc.Register
				verb = "registration"
			}
			if !ok(ctx, email, password) {
				return fmt.Errorf("%s rejected", verb)
			}

			out := cmd.OutOrStdout()
			user := svc.CurrentUser(ctx)
			if user == nil {
				return errors.New("signed in but no user could be resolved")
			}
			fmt.Fprintf(out, "user:     %s (%s)\n", user.Name, user.ID)
			fmt.Fprintf(out, "provider: %s\n", user.Provider)
			fmt.Fprintf(out, "token:    %s\n", tokenPrefix(svc.AccessToken(ctx)))

			if call != "" {
				client.RegisterInterceptor(apiClient, svc)
				status, err := callAPI(ctx, apiClient, flags.backendURL, call)
				if err != nil {
					fmt.Fprintf(out, "call:     GET %s failed: %v\n", call, err)
				} else {
					fmt.Fprintf(out, "call:     GET %s -> %d\n", call, status)
				}
			}

			if !keep {
				svc.Logout(ctx)
				fmt.Fprintln(out, "logged out")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&register, "register", false, "create the account instead of signing in")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the session instead of logging out")
	cmd.Flags().StringVar(&mirror, "mirror", "", "also write the session to this file")
	cmd.Flags().StringVar(&call, "call", "", "backend path to GET with the session's bearer token")
	return cmd
}

func callAPI(ctx context.Context, hc *http.Client, base, path string) (int, error) {
	target, err := url.JoinPath(base, path)
	if err != nil {
		return 0, fmt.Errorf("build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// tokenPrefix shows enough of a token to tell sessions apart.
func tokenPrefix(token string) string {
	const shown = 8
	if len(token) <= shown {
		return token
	}
	return token[:shown] + "..."
}
