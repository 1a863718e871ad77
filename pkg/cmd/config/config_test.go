package config

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDump(t *testing.T) {
	root := &cobra.Command{Use: "iss"}
	root.PersistentFlags().String("log-level", "info", "")
	serve := &cobra.Command{Use: "serve"}
	serve.Flags().String("gemini-api-key", "", "")
	serve.Flags().String("nats-api-key", "", "")
	serve.Flags().Bool("demo-mode", false, "")
	serve.Flags().StringSlice("allowed-ws-origins", []string{"a", "b"}, "")
	root.AddCommand(serve, NewConfigCmd())
	require.NoError(t, serve.Flags().Set("gemini-api-key", "very-secret"))
	require.NoError(t, serve.Flags().Set("demo-mode", "true"))

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, root))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]any{
		"log-level":          "info",
		"gemini-api-key":     "***",
		"nats-api-key":       "",
		"demo-mode":          true,
		"allowed-ws-origins": []any{"a", "b"},
	}, got)
	assert.NotContains(t, buf.String(), "very-secret")
}
