package hooks

// DefaultTimeout is the hook execution timeout in seconds when unset.
const DefaultTimeout = 30

// HookConfig defines a single hook command.
type HookConfig struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout"` // seconds
}

// Config is the hooks configuration file structure.
type Config struct {
	Version     int         `yaml:"version"`
	PreSession  *HookConfig `yaml:"pre_session"`
	PostSession *HookConfig `yaml:"post_session"`
}
