package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoginServer holds every tunable the login authority reads at
// startup. Field names mirror the plain-text key: value config the
// original server used, folded into YAML.
type LoginServer struct {
	BindIP    string `yaml:"bind_ip"`
	LoginPort int    `yaml:"login_port"`

	IPBan bool `yaml:"ipban"`

	DynamicPassFailureBan         bool `yaml:"dynamic_pass_failure_ban"`
	DynamicPassFailureBanInterval int  `yaml:"dynamic_pass_failure_ban_interval"` // seconds
	DynamicPassFailureBanLimit    int  `yaml:"dynamic_pass_failure_ban_limit"`
	DynamicPassFailureBanDuration int  `yaml:"dynamic_pass_failure_ban_duration"` // seconds

	NewAccount             bool `yaml:"new_account"`
	CheckClientVersion     bool `yaml:"check_client_version"`
	ClientVersionToConnect int  `yaml:"client_version_to_connect"`

	UseMD5Passwords   bool `yaml:"use_md5_passwords"`
	MinLevelToConnect int  `yaml:"min_level_to_connect"`

	DateFormat    string `yaml:"date_format"`
	CaseSensitive bool   `yaml:"case_sensitive"`

	AllowedRegs int `yaml:"allowed_regs"`
	TimeAllowed int `yaml:"time_allowed"` // seconds

	OnlineCheck bool `yaml:"online_check"`
	LogLogin    bool `yaml:"log_login"`

	UseDNSBL     bool     `yaml:"use_dnsbl"`
	DNSBLServers []string `yaml:"dnsbl_servers"`

	IPSyncInterval int    `yaml:"ip_sync_interval"` // minutes
	GMReadMethod   string `yaml:"gm_read_method"`   // "login" (read login.level) or "file" (not implemented)

	Database DatabaseConfig `yaml:"database"`
	LAN      []LANEntry     `yaml:"lan"`

	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters plus the
// login_server_* table-name overrides named in the original config.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	MaxConns          int32  `yaml:"max_conns"`
	MinConns          int32  `yaml:"min_conns"`
	MaxConnLifetime   string `yaml:"max_conn_lifetime"`
	MaxConnIdleTime   string `yaml:"max_conn_idle_time"`
	HealthCheckPeriod string `yaml:"health_check_period"`

	// WaitTimeout mirrors the database server's idle-connection timeout
	// (seconds) — the keepalive ping period is derived from it as
	// max(30s, WaitTimeout-30s), the same reserve the original server
	// kept against MySQL's `wait_timeout`.
	WaitTimeout int `yaml:"wait_timeout"`

	TableLogin          string `yaml:"table_login"`
	TableLoginLog       string `yaml:"table_loginlog"`
	TableGlobalRegValue string `yaml:"table_global_reg_value"`
	TableIPBanList      string `yaml:"table_ipbanlist"`
	TableSStatus        string `yaml:"table_sstatus"`
}

// DSN returns the PostgreSQL connection string, pgx pool parameters
// appended as query params when set.
func (d DatabaseConfig) DSN() string {
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)

	var params []string
	if d.MaxConns > 0 {
		params = append(params, fmt.Sprintf("pool_max_conns=%d", d.MaxConns))
	}
	if d.MinConns > 0 {
		params = append(params, fmt.Sprintf("pool_min_conns=%d", d.MinConns))
	}
	if d.MaxConnLifetime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_lifetime=%s", d.MaxConnLifetime))
	}
	if d.MaxConnIdleTime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_idle_time=%s", d.MaxConnIdleTime))
	}
	if d.HealthCheckPeriod != "" {
		params = append(params, fmt.Sprintf("pool_health_check_period=%s", d.HealthCheckPeriod))
	}

	if len(params) > 0 {
		return base + "&" + strings.Join(params, "&")
	}
	return base
}

// LANEntry is one `mask:char_ip:map_ip` row from the LAN config.
type LANEntry struct {
	Mask   string `yaml:"mask"`
	CharIP string `yaml:"char_ip"`
	MapIP  string `yaml:"map_ip"`
}

// Default returns a LoginServer config with the same defaults the
// original plain-text config shipped.
func Default() LoginServer {
	return LoginServer{
		BindIP:    "0.0.0.0",
		LoginPort: 6900,

		IPBan: true,

		DynamicPassFailureBan:         true,
		DynamicPassFailureBanInterval: 300,
		DynamicPassFailureBanLimit:    5,
		DynamicPassFailureBanDuration: 3600,

		NewAccount:             true,
		CheckClientVersion:     false,
		ClientVersionToConnect: 20,

		UseMD5Passwords:   false,
		MinLevelToConnect: 0,

		DateFormat:    "2006-01-02 15:04:05",
		CaseSensitive: false,

		AllowedRegs: 1,
		TimeAllowed: 10,

		OnlineCheck: true,
		LogLogin:    true,

		UseDNSBL:     false,
		DNSBLServers: nil,

		IPSyncInterval: 0,
		GMReadMethod:   "login",

		LogLevel: "info",

		Database: DatabaseConfig{
			Host:                "127.0.0.1",
			Port:                5432,
			User:                "loginauth",
			Password:            "loginauth",
			DBName:              "loginauth",
			SSLMode:             "disable",
			TableLogin:          "login",
			TableLoginLog:       "loginlog",
			TableGlobalRegValue: "global_reg_value",
			TableIPBanList:      "ipbanlist",
			TableSStatus:        "sstatus",
			WaitTimeout:         28800, // MySQL's own default, carried as the baseline reserve
		},
	}
}

// Load reads a YAML config file, falling back to Default when the
// path does not exist. `import:` chaining from the original plain-text
// format is deliberately not reproduced — operators compose YAML files
// with their own tooling instead.
func Load(path string) (LoginServer, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.GMReadMethod != "login" && cfg.GMReadMethod != "file" {
		return cfg, fmt.Errorf("gm_read_method must be %q or %q, got %q", "login", "file", cfg.GMReadMethod)
	}
	if cfg.GMReadMethod == "file" {
		return cfg, fmt.Errorf("gm_read_method %q is not implemented: no GM text-file roster is supported, use %q", "file", "login")
	}

	return cfg, nil
}
