package config_test

import (
	"testing"

	"github.com/cyclopcam/adas/server/config"
	"github.com/cyclopcam/adas/server/pipeline"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// Every config that passes Validate must produce a working pipeline
func TestValidConfigsBuildPipelines(t *testing.T) {
	edits := map[string]func(c *config.Config){
		"default":          func(c *config.Config) {},
		"no mask history":  func(c *config.Config) { c.Lane.MaskHistory = 0 },
		"one mask":         func(c *config.Config) { c.Lane.MaskHistory = 1 },
		"one yBottom":      func(c *config.Config) { c.Lane.YBottomHistory = 1 },
		"power of two":     func(c *config.Config) { c.Lane.MaskHistory = 8; c.Lane.YBottomHistory = 16 },
		"evict on timeout": func(c *config.Config) { c.Track.MaxDisappear = 5 },
	}
	for name, edit := range edits {
		t.Run(name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			edit(cfg)
			require.NoError(t, cfg.Validate())
			p, err := pipeline.NewPipeline(logs.NewTestingLog(t), cfg)
			require.NoError(t, err)

			n := cfg.Lane.Width * cfg.Lane.Height
			laneClasses := make([]float32, n)
			lineClasses := make([]float32, n)
			for i := 0; i < 3; i++ {
				res, err := p.ProcessFrame(&pipeline.FrameInput{Frame: i, LaneClasses: laneClasses, LineClasses: lineClasses})
				require.NoError(t, err)
				require.NotNil(t, res.Lane)
			}
		})
	}
}

func TestInvalidConfigIsRejectedByPipeline(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Lane.YBottomHistory = 0
	_, err := pipeline.NewPipeline(logs.NewTestingLog(t), cfg)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
