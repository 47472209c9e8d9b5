package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devmail/webapp/pkg/mailctl/client"
	"github.com/devmail/webapp/pkg/mailctl/output"
)

const DefaultServer = "http://localhost:8080"

type Config struct {
	Server       string
	OutputWriter io.Writer
}

type runtimeState struct {
	server       string
	outputFormat string
	timeout      time.Duration
	insecure     bool
	writer       io.Writer
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		Server:       DefaultServer,
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{writer: cfg.OutputWriter}

	root := &cobra.Command{
		Use:           "mailctl",
		Short:         "Inspect the development mail log of a webapp instance",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if !cmd.Flags().Changed("server") {
				if env := os.Getenv("MAILCTL_SERVER"); env != "" {
					rt.server = env
				}
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("MAILCTL_OUTPUT")
			}
			if !rt.insecure {
				rt.insecure = strings.EqualFold(os.Getenv("MAILCTL_INSECURE_SKIP_VERIFY"), "true")
			}
			_, err := output.ParseFormat(rt.outputFormat)
			return err
		},
	}

	server := cfg.Server
	if server == "" {
		server = DefaultServer
	}
	root.PersistentFlags().StringVarP(&rt.server, "server", "s", server, "Base URL of the webapp")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	root.PersistentFlags().DurationVar(&rt.timeout, "timeout", 30*time.Second, "Request timeout")
	root.PersistentFlags().BoolVar(&rt.insecure, "insecure-skip-tls-verify", false, "Skip TLS certificate verification")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewEmailsCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) OutputFormat() output.Format {
	f, err := output.ParseFormat(rt.outputFormat)
	if err != nil {
		return output.FormatTable
	}
	return f
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) Client() (*client.Client, error) {
	return client.New(
		client.WithServer(rt.server),
		client.WithTimeout(rt.timeout),
		client.WithInsecureSkipVerify(rt.insecure),
	)
}
