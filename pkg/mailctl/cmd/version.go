package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devmail/webapp/pkg/mailctl/output"
	"github.com/devmail/webapp/pkg/version"
)

type versionOutput struct {
	Client version.BuildInfo  `json:"client" yaml:"client"`
	Server *version.BuildInfo `json:"server,omitempty" yaml:"server,omitempty"`
}

func NewVersionCommand() *cobra.Command {
	var clientOnly bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show mailctl and server versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			out := versionOutput{Client: version.GetBuildInfo()}
			if !clientOnly {
				c, err := rt.Client()
				if err != nil {
					return err
				}
				info, err := c.ServerVersion(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to query server version: %w", err)
				}
				out.Server = info
			}

			format := rt.OutputFormat()
			if format != output.FormatTable {
				return output.WriteObject(rt.Writer(), format, out)
			}
			w := rt.Writer()
			_, _ = fmt.Fprintf(w, "mailctl %s (commit: %s, built: %s)\n", out.Client.Version, out.Client.GitCommit, out.Client.BuildDate)
			if out.Server != nil {
				_, _ = fmt.Fprintf(w, "server  %s (commit: %s, built: %s)\n", out.Server.Version, out.Server.GitCommit, out.Server.BuildDate)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clientOnly, "client", false, "Only print the mailctl version")
	return cmd
}
