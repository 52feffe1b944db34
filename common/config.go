package common

import "github.com/spf13/viper"

// ===============================================================================
// Broker Related Config

// BrokerReconnectConfig defines reconnect parameters
type BrokerReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts (-1 is unlimited)
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the duration between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" validate:"gte=1"`
}

// BrokerConfig defines parameters for connecting to the pub/sub broker
type BrokerConfig struct {
	// ServerURI is the broker connection URI
	ServerURI string `mapstructure:"server_uri" json:"server_uri" validate:"required,uri"`
	// ConnectTimeout is the max duration for connecting to the broker in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines reconnect parameters
	Reconnect BrokerReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required,dive"`
}

// ===============================================================================
// Ack Coordinator Related Config

// AckConfig defines parameters for the cross-server group-management ack coordinator
type AckConfig struct {
	// TimeoutSec is the duration an AddGroup/RemoveGroup call waits for the target
	// server to ack before failing with AckTimeout
	TimeoutSec int `mapstructure:"timeout_sec" json:"timeout_sec" validate:"required,gt=0"`
}

// ===============================================================================
// Hub Related Config

// HubConfig defines parameters identifying this hub type
type HubConfig struct {
	// TypeName is the string used as the broker channel prefix for this hub type
	TypeName string `mapstructure:"type_name" json:"type_name" validate:"required"`
}

// ===============================================================================
// HTTP Related Config (status/observability surface)

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire request in seconds.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out writes in seconds.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the next request when
	// keep-alives are enabled, in seconds.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// StatusServerConfig defines configuration for the read-only status API server
type StatusServerConfig struct {
	// HTTPSetting is the HTTP API / server parameters for the status server
	HTTPSetting HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required,dive"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required,dive"`
	// PathPrefix is the end-point path prefix for the status APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config used by the hub server binary
type SystemConfig struct {
	// Broker are the broker connection config parameters
	Broker BrokerConfig `mapstructure:"broker" json:"broker" validate:"required,dive"`
	// Ack are the ack coordinator config parameters
	Ack AckConfig `mapstructure:"ack" json:"ack" validate:"required,dive"`
	// Hub identifies this hub type
	Hub HubConfig `mapstructure:"hub" json:"hub" validate:"required,dive"`
	// Status is the optional read-only status API server config
	Status *StatusServerConfig `mapstructure:"status,omitempty" json:"status,omitempty" validate:"omitempty,dive"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default broker settings
	viper.SetDefault("broker.server_uri", "nats://127.0.0.1:4222")
	viper.SetDefault("broker.connect_timeout_sec", 30)
	viper.SetDefault("broker.reconnect.max_attempts", -1)
	viper.SetDefault("broker.reconnect.wait_interval_sec", 15)

	// Default ack coordinator settings
	viper.SetDefault("ack.timeout_sec", 5)

	// Default hub settings
	viper.SetDefault("hub.type_name", "defaultHub")

	// Default status server settings
	viper.SetDefault("status.path_prefix", "/")
	viper.SetDefault("status.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("status.server_config.listen_port", 3000)
	viper.SetDefault("status.server_config.read_timeout_sec", 60)
	viper.SetDefault("status.server_config.write_timeout_sec", 60)
	viper.SetDefault("status.server_config.idle_timeout_sec", 600)
	viper.SetDefault("status.logging_config.request_id_header", "Hublife-Request-ID")
	viper.SetDefault(
		"status.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
}
