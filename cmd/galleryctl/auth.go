package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func (a *app) authCmd() *cobra.Command {
	var otp string
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Exchange a one-time password for a session token",
		Long: `Exchanges a one-time password issued by an already signed-in device for a
bearer token and stores it in the token file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			otp = strings.TrimSpace(otp)
			if otp == "" {
				return errors.New("--otp is required")
			}
			c, err := a.signalClient(false)
			if err != nil {
				return err
			}
			token, err := c.Login(cmd.Context(), otp)
			if err != nil {
				return err
			}
			store, err := a.tokenStore()
			if err != nil {
				return err
			}
			if err := store.Save(token); err != nil {
				return err
			}
			fmt.Fprint(a.out, pterm.Success.Sprintfln("signed in, token saved to %s", store.Path))
			return nil
		},
	}
	cmd.Flags().StringVar(&otp, "otp", "", "one-time password")
	return cmd
}

func (a *app) otpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "otp",
		Short: "Issue a one-time password for signing in another device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.signalClient(true)
			if err != nil {
				return err
			}
			otp, err := c.RequestOTP(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, pterm.Info.Sprintfln("one-time password: %s (expires %s)",
				otp.Code, otp.Expires().Local().Format(time.Kitchen)))
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the user id behind the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.signalClient(true)
			if err != nil {
				return err
			}
			uid, err := c.WhoAmI(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, uid)
			return nil
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.tokenStore()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprint(a.out, pterm.Success.Sprintln("signed out"))
			return nil
		},
	}
}
