package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/franz/prms-console/internal/util"
	"github.com/franz/prms-console/internal/view"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the bearer token",
	Long: `Sign in to the backend. The access token is written to the local state
database and sent with every later request until 'prms logout' or a 401.

The password is read from --password, PRMS_PASSWORD, or prompted for.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove the stored token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in operator",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().StringP("username", "u", "", "username")
	loginCmd.Flags().String("password", "", "password (prefer the prompt or PRMS_PASSWORD)")
	viper.BindPFlag("username", loginCmd.Flags().Lookup("username"))
	viper.BindPFlag("password", loginCmd.Flags().Lookup("password"))
}

func runLogin(cmd *cobra.Command, args []string) error {
	username := viper.GetString("username")
	password := viper.GetString("password")

	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		line, _ := reader.ReadString('\n')
		username = strings.TrimSpace(line)
	}
	if password == "" {
		secret, err := util.ReadSecret("Password: ", os.Stdin, reader)
		if err != nil {
			return err
		}
		password = secret
	}
	if username == "" || password == "" {
		return util.Validation("username and password are required")
	}

	return withApp(func(a *app) error {
		tok, err := a.api.Auth().Login(cmd.Context(), username, password)
		if err != nil {
			return a.report(err)
		}
		if tok.AccessToken == "" {
			return util.NewError(util.KindAuth, "login succeeded but no token was returned")
		}
		if err := a.kv.SetToken(tok.AccessToken); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
		name := username
		if tok.User != nil && tok.User.Username != "" {
			name = tok.User.Username
		}
		util.SuccessLog("Signed in as %s", name)
		return nil
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		tok, err := a.kv.Token()
		if err != nil {
			return err
		}
		if tok == "" {
			util.InfoLog("Not signed in")
			return nil
		}
		// The token is dropped locally even when the server call fails
		if err := a.api.Auth().Logout(cmd.Context()); err != nil && !util.IsKind(err, util.KindAuth) {
			util.WarnLog("Server logout failed: %v", err)
		}
		if err := a.kv.DeleteToken(); err != nil {
			return fmt.Errorf("failed to remove token: %w", err)
		}
		util.SuccessLog("Signed out")
		return nil
	})
}

func runWhoami(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		u, err := a.api.Auth().Me(cmd.Context())
		if err != nil {
			return a.report(err)
		}
		fmt.Printf("%s (%s)\n", u.Username, orNone(u.Role))
		if u.Email != "" {
			fmt.Printf("  email:      %s\n", u.Email)
		}
		if u.Area != "" {
			fmt.Printf("  area:       %s\n", u.Area)
		}
		fmt.Printf("  last login: %s\n", view.Since(u.LastLogin.Time))
		fmt.Printf("  backend:    %s\n", a.api.BaseURL())
		return nil
	})
}

func orNone(s string) string {
	if s == "" {
		return "no role"
	}
	return s
}
