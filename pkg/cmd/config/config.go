package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var secretMarkers = []string{"key", "password", "token", "secret"}

// NewConfigCmd prints the effective flag values of all commands of root.
// The output can be used as .iss.yml.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "prints the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Dump(cmd.OutOrStdout(), cmd.Root())
		},
	}
}

// Dump writes the flag values of root and its subcommands to w.
// Values of secret flags are masked.
func Dump(w io.Writer, root *cobra.Command) error {
	values := map[string]any{}
	collect := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Name == "help" || f.Name == "version" || f.Name == "config" {
				return
			}
			values[f.Name] = flagValue(f)
		})
	}
	collect(root.PersistentFlags())
	for _, c := range root.Commands() {
		collect(c.Flags())
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func flagValue(f *pflag.Flag) any {
	if isSecret(f.Name) {
		if f.Value.String() == "" {
			return ""
		}
		return "***"
	}
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		return sv.GetSlice()
	}
	switch f.Value.Type() {
	case "bool":
		return f.Value.String() == "true"
	default:
		return f.Value.String()
	}
}

func isSecret(name string) bool {
	for _, m := range secretMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
