package tls

// Config is the [server.tls] section of the collector config.
//
// CertFile/KeyFile win over Dir. With Dir set, tls.crt and tls.key are read
// from it and, when AutoGenerate is on and they are missing, a self-signed
// pair is written there first together with tls_ca.crt for clients.
type Config struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// CACertPath is where a generated pair leaves its CA certificate, or "" when
// the pair is not generated.
func (c Config) CACertPath() string {
	if c.Dir == "" || c.CertFile != "" {
		return ""
	}
	return joinDir(c.Dir, tlsCaCrt)
}
