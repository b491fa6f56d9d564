package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syssam/fabrica/config"
)

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigShowCmd(flags))
	return cmd
}

func newConfigShowCmd(flags *rootFlags) *cobra.Command {
	var showSource bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, src, err := flags.load()
			if err != nil {
				return err
			}
			if showSource {
				if src == "" {
					src = "(defaults and environment only)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", src)
			}
			out, err := yaml.Marshal(configView(cfg))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&showSource, "source", false, "print which config file was used")
	return cmd
}

// configView renders the config for display. Secret fields go through
// Secret.String, which redacts anything not in env:NAME form.
func configView(cfg *config.Config) map[string]any {
	view := map[string]any{
		"connectionString":    cfg.ConnectionString.String(),
		"schema":              cfg.Schema,
		"outDir":              outDirView(cfg.OutDir),
		"includeMethodsDepth": cfg.IncludeMethodsDepth,
		"maxIncludeDepth":     cfg.MaxIncludeDepth,
		"defaultLimit":        cfg.DefaultLimit,
		"maxLimit":            cfg.MaxLimit,
		"dateType":            cfg.DateType,
		"strictIncludes":      cfg.StrictIncludes,
	}
	if cfg.SoftDeleteColumn != "" {
		view["softDeleteColumn"] = cfg.SoftDeleteColumn
	}
	if len(cfg.TypeOverrides) > 0 {
		view["typeOverrides"] = cfg.TypeOverrides
	}

	auth := map[string]any{}
	if len(cfg.Auth.APIKeys) > 0 {
		keys := make([]string, len(cfg.Auth.APIKeys))
		for i, k := range cfg.Auth.APIKeys {
			keys[i] = k.String()
		}
		auth["apiKeys"] = keys
		auth["apiKeyHeader"] = cfg.Auth.APIKeyHeader
	}
	if cfg.Auth.JWT != nil {
		services := make([]map[string]string, len(cfg.Auth.JWT.Services))
		for i, svc := range cfg.Auth.JWT.Services {
			services[i] = map[string]string{"issuer": svc.Issuer, "secret": svc.Secret.String()}
		}
		auth["jwt"] = map[string]any{"audience": cfg.Auth.JWT.Audience, "services": services}
	}
	if cfg.Auth.PullToken != "" {
		auth["pullToken"] = cfg.Auth.PullToken.String()
	}
	if len(auth) > 0 {
		view["auth"] = auth
	}
	return view
}

func outDirView(o config.OutDir) any {
	if o.Single {
		return o.Server
	}
	return map[string]string{"server": o.Server, "client": o.Client}
}
