package configs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/cinesphere/internal/config"
)

func TestProjectConfigTemplate_MatchesDefaults(t *testing.T) {
	// Given the defaults
	cfg := config.NewConfig()

	// When decoding the template over them with strict keys
	dec := yaml.NewDecoder(bytes.NewReader([]byte(ProjectConfigTemplate)))
	dec.KnownFields(true)
	require.NoError(t, dec.Decode(cfg))

	// Then nothing changed
	assert.Equal(t, config.NewConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}
