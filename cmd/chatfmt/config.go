package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"chatfmt/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func configCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Read and change values of the config file by dot path. Secrets are masked on output.",
	}
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")

	get := &cobra.Command{
		Use:   "get <path>",
		Short: "Print one value, e.g. general.adapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), output, val)
		},
	}

	set := &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Change one value, e.g. general.adapter slack",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set %s: %w", args[0], err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("rejected %s=%s: %w", args[0], args[1], err)
			}
			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "key", args[0], "file", path)
			return nil
		},
	}

	var flat bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Print the whole config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			safe := config.Sanitize(cfg)
			if !flat {
				return printValue(cmd.OutOrStdout(), output, safe)
			}
			leaves := config.ListPaths(safe)
			keys := make([]string, 0, len(leaves))
			for k := range leaves {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, leaves[k])
			}
			return nil
		},
	}
	list.Flags().BoolVar(&flat, "flat", false, "one dot path per line")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	}

	cmd.AddCommand(get, set, list, path)
	return cmd
}

// printValue writes v as indented JSON or as YAML.
func printValue(w io.Writer, format string, v any) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json", "":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
