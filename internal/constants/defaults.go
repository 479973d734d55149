package constants

// Build information used when the linker does not inject it.
const (
	DefaultVersion   = "0.1.0-dev"
	DefaultBuildTime = "unknown"
	DefaultGitCommit = "unknown"
	DefaultGoVersion = "unknown"
)

// DefaultConfigPath is where the CLI looks for its TOML file when --config is not set.
const DefaultConfigPath = "./odoosweep.toml"

// DefaultEnvPath is the optional dotenv file loaded before the config.
const DefaultEnvPath = "./.env"
