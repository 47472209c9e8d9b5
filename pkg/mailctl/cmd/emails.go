package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devmail/webapp/pkg/api"
	"github.com/devmail/webapp/pkg/mail"
	"github.com/devmail/webapp/pkg/mailctl/output"
)

func NewEmailsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "emails",
		Aliases: []string{"email", "mail"},
		Short:   "List or send emails in the development mail log",
	}
	cmd.AddCommand(newEmailsListCommand(), newEmailsSendCommand())
	return cmd
}

func newEmailsListCommand() *cobra.Command {
	var hour int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logged emails, optionally for a single hour (0-23)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			c, err := rt.Client()
			if err != nil {
				return err
			}

			var buckets []api.HourBucket
			var result any
			if cmd.Flags().Changed("hour") {
				if hour < 0 || hour >= mail.HoursPerDay {
					return fmt.Errorf("--hour must be between 0 and %d, got %d", mail.HoursPerDay-1, hour)
				}
				bucket, err := c.GetBucket(cmd.Context(), hour)
				if err != nil {
					return err
				}
				buckets, result = []api.HourBucket{*bucket}, bucket
			} else {
				resp, err := c.ListEmails(cmd.Context())
				if err != nil {
					return err
				}
				buckets, result = resp.Buckets, resp
			}

			format := rt.OutputFormat()
			if format == output.FormatTable {
				output.WriteEmailTable(rt.Writer(), buckets)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, result)
		},
	}

	cmd.Flags().IntVar(&hour, "hour", 0, "Only show the bucket for this hour of the day")
	return cmd
}

func newEmailsSendCommand() *cobra.Command {
	var req api.SendEmailRequest

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a test email through the server's configured sender",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			c, err := rt.Client()
			if err != nil {
				return err
			}
			if err := c.SendEmail(cmd.Context(), req); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "email to %s accepted\n", req.To)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.To, "to", "", "Recipient address")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&req.Body, "body", "", "HTML body")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
