package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casedash/casedash/internal/auth"
	"github.com/spf13/cobra"
)

var (
	username string
	password string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	Long: `Exchange a username and password for a token pair and persist it.

The password is taken from --password, then CASEDASH_PASSWORD, and is
otherwise read from standard input.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	loginCmd.MarkFlagRequired("username")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	pw := password
	if pw == "" {
		pw = os.Getenv("CASEDASH_PASSWORD")
	}
	if pw == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}

	pair, err := a.Auth.Login(cmd.Context(), username, pw)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return errors.New("invalid username or password")
	}
	if err != nil {
		return err
	}
	if err := a.Store.Login(pair.AccessToken, pair.RefreshToken); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✅ Logged in as", username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.Store.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	creds := a.Store.Credentials()
	status := map[string]any{
		"authenticated":   creds.IsAuthenticated,
		"hasRefreshToken": creds.RefreshToken != "",
	}
	if exp, ok := auth.ExpiresAt(creds.AccessToken); ok {
		status["expiresAt"] = exp.Format(time.RFC3339)
		status["minutesUntilExpiry"] = int64(time.Until(exp) / time.Minute)
		status["isExpired"] = auth.TokenExpired(creds.AccessToken, 0)
	}
	return printJSON(cmd.OutOrStdout(), status)
}
