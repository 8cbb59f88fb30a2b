package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remedyhq/remedy/internal/sandbox"
)

func TestSandboxSettings_ResolvesTemplate(t *testing.T) {
	testEnv(t)
	viper.Set("sandbox.api_url", "https://sandboxes.example.com")
	viper.Set("sandbox.api_key", "sk_test")
	viper.Set("sandbox.tools", []string{"docs_search"})
	viper.Set("setup_cmds", []string{"make deps"})

	cfg, setup, err := sandboxSettings()
	require.NoError(t, err)

	assert.Equal(t, "https://sandboxes.example.com", cfg.APIURL)
	assert.Equal(t, "sk_test", cfg.APIKey)
	assert.Equal(t, "remedy/base:latest", cfg.Template, "provider receives the catalog image, not the name")
	assert.Equal(t, 1800, cfg.TimeoutSeconds)
	assert.Equal(t, []sandbox.Tool{sandbox.ToolDocsSearch}, cfg.Tools)

	require.NotEmpty(t, setup)
	assert.Contains(t, setup[0], "git config", "template setup commands run first")
	assert.Equal(t, "make deps", setup[len(setup)-1], "user setup_cmds run after the template's")
}

func TestSandboxSettings_NamedTemplate(t *testing.T) {
	testEnv(t)
	viper.Set("sandbox.template", "go")

	cfg, _, err := sandboxSettings()
	require.NoError(t, err)
	assert.Equal(t, "remedy/go1.26:latest", cfg.Template)
}

func TestSandboxSettings_UnknownTemplate(t *testing.T) {
	testEnv(t)
	viper.Set("sandbox.template", "windows-xp")

	_, _, err := sandboxSettings()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "windows-xp")
}
