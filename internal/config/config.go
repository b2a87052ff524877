package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the file Load looks for in the config directory.
const ConfigFileName = "missioncontrol.cfg.json"

// CommandConfig holds inbound command listener settings
type CommandConfig struct {
	PortMin       int           `json:"portMin" mapstructure:"portMin"`
	PortMax       int           `json:"portMax" mapstructure:"portMax"`
	ForcedPort    int           `json:"forcedPort" mapstructure:"forcedPort"`
	MaxFrameBytes int           `json:"maxFrameBytes" mapstructure:"maxFrameBytes"`
	ReadTimeout   time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
}

// AgentConfig holds settings for the outbound channel to the agent
type AgentConfig struct {
	PingInterval time.Duration
	SendTimeout  time.Duration
}

// TelemetryConfig holds telemetry transport settings
type TelemetryConfig struct {
	RetryWindow   time.Duration
	ByteOrder     string
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	TrackInterval time.Duration
}

// TimeoutConfig holds the episode timeout guards
type TimeoutConfig struct {
	WorldCreate time.Duration
	ServerReady time.Duration
}

// StorageConfig selects the mission history backend
type StorageConfig struct {
	Type       string
	SQLitePath string
	WebSocket  WebSocketConfig
}

// WebSocketConfig holds the dashboard stream settings
type WebSocketConfig struct {
	URL    string
	Secret string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// SetDefaults registers every default value. Load calls it; tests and
// callers that run without a config file may call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("version", "0.1.0")

	viper.SetDefault("commands.portMin", 10000)
	viper.SetDefault("commands.portMax", 11000)
	viper.SetDefault("commands.forcedPort", 0)
	viper.SetDefault("commands.maxFrameBytes", 1<<20)
	viper.SetDefault("commands.readTimeout", "5s")

	viper.SetDefault("agent.pingInterval", "1s")
	viper.SetDefault("agent.sendTimeout", "1s")

	viper.SetDefault("telemetry.retryWindow", "5s")
	viper.SetDefault("telemetry.byteOrder", "big")
	viper.SetDefault("telemetry.dialTimeout", "1s")
	viper.SetDefault("telemetry.writeTimeout", "1s")
	viper.SetDefault("telemetry.trackInterval", "1s")

	viper.SetDefault("timeouts.worldCreate", "60s")
	viper.SetDefault("timeouts.serverReady", "60s")

	viper.SetDefault("exit.gracePeriod", "10s")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sqlite.path", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "missioncontrol")

	viper.SetDefault("websocket.url", "ws://localhost:5000/api/missioncontrol")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "missioncontrol")
	viper.SetDefault("influx.bucket", "mission_control")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "missioncontrol")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetCommandConfig returns the inbound listener configuration.
func GetCommandConfig() CommandConfig {
	return CommandConfig{
		PortMin:       viper.GetInt("commands.portMin"),
		PortMax:       viper.GetInt("commands.portMax"),
		ForcedPort:    viper.GetInt("commands.forcedPort"),
		MaxFrameBytes: viper.GetInt("commands.maxFrameBytes"),
		ReadTimeout:   viper.GetDuration("commands.readTimeout"),
	}
}

// GetAgentConfig returns the outbound agent channel configuration.
func GetAgentConfig() AgentConfig {
	return AgentConfig{
		PingInterval: viper.GetDuration("agent.pingInterval"),
		SendTimeout:  viper.GetDuration("agent.sendTimeout"),
	}
}

// GetTelemetryConfig returns the telemetry transport configuration.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		RetryWindow:   viper.GetDuration("telemetry.retryWindow"),
		ByteOrder:     viper.GetString("telemetry.byteOrder"),
		DialTimeout:   viper.GetDuration("telemetry.dialTimeout"),
		WriteTimeout:  viper.GetDuration("telemetry.writeTimeout"),
		TrackInterval: viper.GetDuration("telemetry.trackInterval"),
	}
}

// GetTimeoutConfig returns the episode timeout guards.
func GetTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		WorldCreate: viper.GetDuration("timeouts.worldCreate"),
		ServerReady: viper.GetDuration("timeouts.serverReady"),
	}
}

// GetExitGracePeriod returns how long a requested exit may take before
// the process is terminated.
func GetExitGracePeriod() time.Duration {
	return viper.GetDuration("exit.gracePeriod")
}

// GetStorageConfig returns the history backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:       viper.GetString("storage.type"),
		SQLitePath: viper.GetString("storage.sqlite.path"),
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("websocket.url"),
			Secret: viper.GetString("websocket.secret"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}
