package config

import (
	"time"

	"github.com/c2h5oh/datasize"
)

// TestServer locates one test server. Empty fields are filled from
// Config.TestServerDefaults.
type TestServer struct {
	URL            string `mapstructure:"url" yaml:"url"`
	Transport      string `mapstructure:"transport" yaml:"transport"`
	DatasetVersion string `mapstructure:"dataset_version" yaml:"dataset_version"`
}

// Poll holds the default poll specification for state waits.
type Poll struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Config is the parsed test environment description.
type Config struct {
	TestServers        []TestServer `mapstructure:"test_servers" yaml:"test_servers"`
	TestServerDefaults TestServer   `mapstructure:"test_server_defaults" yaml:"test_server_defaults"`

	// Backend services are not driven by this module; their entries are kept
	// as given so tests can reach them.
	SyncGateways     []map[string]any `mapstructure:"sync_gateways" yaml:"sync_gateways"`
	CouchbaseServers []map[string]any `mapstructure:"couchbase_servers" yaml:"couchbase_servers"`
	EdgeServers      []map[string]any `mapstructure:"edge_servers" yaml:"edge_servers"`
	LoadBalancers    []string         `mapstructure:"load_balancers" yaml:"load_balancers"`

	// LogSlurp is the log collection endpoint handed to every new session.
	LogSlurp string `mapstructure:"logslurp" yaml:"logslurp"`
	// APIVersion caps the negotiated protocol version. Zero means no cap.
	APIVersion int `mapstructure:"api_version" yaml:"api_version"`

	HTTPTimeout      time.Duration     `mapstructure:"http_timeout" yaml:"http_timeout"`
	WSListenAddress  string            `mapstructure:"ws_listen_address" yaml:"ws_listen_address"`
	WSMaxMessageSize datasize.ByteSize `mapstructure:"ws_max_message_size" yaml:"ws_max_message_size"`
	ConnectTimeout   time.Duration     `mapstructure:"connect_timeout" yaml:"connect_timeout"`

	// RecordPath is the directory exchanges are written to. Empty disables
	// recording.
	RecordPath string `mapstructure:"record_path" yaml:"record_path"`
	Poll       Poll   `mapstructure:"poll" yaml:"poll"`
}
