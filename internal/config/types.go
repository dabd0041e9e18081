package config

// Transport names accepted by the serve command and config file.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Config is chimera's top-level configuration. The metadata database is
// required; everything else has a default. `validate` tags run after the
// strict YAML decode and after flag overrides.
type Config struct {
	Transport string `yaml:"transport" validate:"oneof=stdio sse"`
	Host      string `yaml:"host" validate:"required"`
	Port      int    `yaml:"port" validate:"min=1,max=65535"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogsDir  string `yaml:"logs_dir"`

	// MetadataURL is the registry/artifact/audit store. Fatal if
	// unreachable at startup.
	MetadataURL string `yaml:"metadata_url" validate:"required"`
	// DataURL is the store SQL tools query. Empty or unreachable means
	// offline mode.
	DataURL string `yaml:"data_url"`

	SchemaPrefix       string            `yaml:"schema_prefix"`
	TableNameOverrides map[string]string `yaml:"table_name_overrides"`

	DashboardEnabled    bool   `yaml:"dashboard_enabled"`
	DashboardStorageDir string `yaml:"dashboard_storage_dir"`
	DashboardBaseURL    string `yaml:"dashboard_base_url" validate:"omitempty,url"`
}
