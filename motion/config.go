package motion

import (
	"time"

	"github.com/pkg/errors"
)

// Config tunes the executive. Zero values are filled by Validate from the
// stock configuration.
type Config struct {
	// TreeTickRate is the behaviour tree rate in Hz.
	TreeTickRate float64 `json:"tree_tick_rate"`
	// DefaultJointVelLimit fills velocity limits absent from the model.
	DefaultJointVelLimit float64 `json:"default_joint_vel_limit"`
	// DefaultJointWeight fills cost weights absent from the model.
	DefaultJointWeight float64 `json:"default_joint_weight"`
	// WallTimeout bounds one motion end to end.
	WallTimeout time.Duration `json:"wall_timeout"`
	// MaxPlanningTicks caps the trajectory length per command.
	MaxPlanningTicks int `json:"max_planning_ticks"`
	// MaxUniverseDepth bounds planning-universe nesting.
	MaxUniverseDepth int `json:"max_universe_depth"`
	// GoalReachedVelEps: planning stops once every commanded velocity is
	// below this for two consecutive ticks after MinPlanningTicks.
	GoalReachedVelEps float64 `json:"goal_reached_vel_eps"`
	// MinPlanningTicks keeps planning alive long enough to move at all.
	MinPlanningTicks int `json:"min_planning_ticks"`
	// WiggleWindow is the sample span inspected for oscillation.
	WiggleWindow int `json:"wiggle_window"`
	// EvaluatorCacheDir, when set, persists compiled evaluators.
	EvaluatorCacheDir string `json:"evaluator_cache_dir"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		TreeTickRate:         50,
		DefaultJointVelLimit: 1.0,
		DefaultJointWeight:   0.001,
		WallTimeout:          30 * time.Second,
		MaxPlanningTicks:     1000,
		MaxUniverseDepth:     1,
		GoalReachedVelEps:    1e-3,
		MinPlanningTicks:     5,
		WiggleWindow:         40,
	}
}

// Validate fills zero values and rejects nonsense.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.TreeTickRate == 0 {
		c.TreeTickRate = d.TreeTickRate
	}
	if c.TreeTickRate < 0 {
		return errors.New("tree_tick_rate must be positive")
	}
	if c.DefaultJointVelLimit == 0 {
		c.DefaultJointVelLimit = d.DefaultJointVelLimit
	}
	if c.DefaultJointWeight == 0 {
		c.DefaultJointWeight = d.DefaultJointWeight
	}
	if c.WallTimeout == 0 {
		c.WallTimeout = d.WallTimeout
	}
	if c.MaxPlanningTicks == 0 {
		c.MaxPlanningTicks = d.MaxPlanningTicks
	}
	if c.MaxUniverseDepth == 0 {
		c.MaxUniverseDepth = d.MaxUniverseDepth
	}
	if c.GoalReachedVelEps == 0 {
		c.GoalReachedVelEps = d.GoalReachedVelEps
	}
	if c.MinPlanningTicks == 0 {
		c.MinPlanningTicks = d.MinPlanningTicks
	}
	if c.WiggleWindow == 0 {
		c.WiggleWindow = d.WiggleWindow
	}
	return nil
}

// Dt returns the integration step of one tick.
func (c *Config) Dt() float64 { return 1 / c.TreeTickRate }
