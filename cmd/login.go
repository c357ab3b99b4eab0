package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/creator-crawler/internal/session"
)

type loginOptions struct {
	account  string
	headless bool
	download bool
	upload   bool
}

func (o *loginOptions) bind(cmd *cobra.Command, withDownload bool) {
	cmd.Flags().StringVar(&o.account, "account", "", "account name (default account when empty)")
	cmd.Flags().BoolVar(&o.headless, "headless", false, "run the browser headless")
	cmd.Flags().BoolVar(&o.upload, "upload", false, "archive the profile after a valid login")
	if withDownload {
		cmd.Flags().BoolVar(&o.download, "download", false, "restore the archived profile before checking")
	}
}

func (o *loginOptions) session() session.Options {
	return session.Options{Headless: o.headless, Download: o.download, Upload: o.upload}
}

func newCheckLoginCmd() *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "check-login",
		Short: "Checks whether an account is logged in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			valid, err := appInstance.CheckLogin(cmd.Context(), opts.account, opts.session())
			if err != nil {
				color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "check failed: %v\n", err)
				return err
			}
			if valid {
				color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "login valid")
			} else {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "login invalid")
			}
			return nil
		},
	}
	opts.bind(cmd, true)
	return cmd
}

func newLoginCmd() *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Logs an account in through the browser",
		Long:  `Opens the platform in a browser profile and waits for the login to complete.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Login(cmd.Context(), opts.account, opts.session()); err != nil {
				color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "login failed: %v\n", err)
				return err
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "login succeeded")
			return nil
		},
	}
	opts.bind(cmd, false)
	return cmd
}
