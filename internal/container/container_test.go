package container

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SuperSchedules/superschedules/config"
	"github.com/SuperSchedules/superschedules/internal/api/locations"
)

func TestResolverConfig(t *testing.T) {
	defaults := locations.DefaultResolverConfig()

	t.Run("unset values keep the defaults", func(t *testing.T) {
		assert.Equal(t, defaults, resolverConfig(config.Locations{}))
	})

	t.Run("zero confidence can be configured", func(t *testing.T) {
		zero, half := 0.0, 0.5
		var cfg config.Locations
		cfg.Confidence.Ambiguous = &zero
		cfg.Confidence.Unique = &half
		cfg.PreferredStates = []string{"NY"}

		rc := resolverConfig(cfg)
		assert.Equal(t, 0.0, rc.AmbiguousConfidence)
		assert.Equal(t, 0.5, rc.UniqueConfidence)
		assert.Equal(t, defaults.ExactConfidence, rc.ExactConfidence)
		assert.Equal(t, defaults.PreferredConfidence, rc.PreferredConfidence)
		assert.Equal(t, []string{"NY"}, rc.PreferredStates)
	})
}
