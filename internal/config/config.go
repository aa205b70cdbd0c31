package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the service needs, resolved once at startup and
// passed by reference into services and handlers.
type Config struct {
	Server    ServerConfig
	QuickBase QuickBaseConfig
	Firebase  FirebaseConfig
	Redis     RedisConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            int
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// QuickBaseConfig identifies the realm, the user token and the four tables
// the portal touches. Table ids come from the .config file in production;
// environment variables are the fallback.
type QuickBaseConfig struct {
	RealmHostname string
	UserToken     string

	OrderSubmissionsTable string
	LineItemsTable        string
	JobsTable             string
	ContactsTable         string
	UOMTable              string

	// Write-path field ids. The live schema is a fixed contract; these are
	// configurable so a schema change is an ops change, not a deploy.
	HeaderFields   HeaderFieldIDs
	LineItemFields LineItemFieldIDs
	RecordIDField  int
}

type HeaderFieldIDs struct {
	RelatedJob   int
	OrderedBy    int
	RequestDate  int
	DeliveryDate int
}

type LineItemFieldIDs struct {
	RelatedOrder int
	ItemName     int
	Description  int
	Quantity     int
	RelatedUOM   int
}

type FirebaseConfig struct {
	APIKey    string
	ProjectID string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load resolves configuration from the .config file, then the process
// environment, then defaults. A missing .config file is not an error.
func Load() (*Config, error) {
	return LoadFrom(".config")
}

// LoadFrom is Load with an explicit file path, for tests.
func LoadFrom(configFile string) (*Config, error) {
	godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	// File values win over the environment. Viper ranks env above config
	// files, so the .config entries go in as explicit overrides. godotenv
	// already handles comments, blank lines and split-on-first-= the way
	// the file format requires; a missing or unreadable file is silently
	// an empty mapping.
	if fileCfg, err := godotenv.Read(configFile); err == nil {
		for key, value := range fileCfg {
			v.Set(key, value)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			Mode:            v.GetString("SERVER_MODE"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		QuickBase: QuickBaseConfig{
			RealmHostname:         CleanRealmHostname(firstNonEmpty(v, "QB_REALM_HOSTNAME", "QUICKBASE_REALM_HOSTNAME")),
			UserToken:             firstNonEmpty(v, "QB_USER_TOKEN", "QUICKBASE_API_TOKEN"),
			OrderSubmissionsTable: v.GetString("ORDER_SUBMISSIONS"),
			LineItemsTable:        v.GetString("ORDER_SUBMISSIONS_LINEITEMS"),
			JobsTable:             v.GetString("JOBS_TABLE"),
			ContactsTable:         v.GetString("CONTACTS_TABLE"),
			UOMTable:              v.GetString("UOM_TABLE"),
			HeaderFields: HeaderFieldIDs{
				RelatedJob:   v.GetInt("QB_FIELD_HEADER_RELATED_JOB"),
				OrderedBy:    v.GetInt("QB_FIELD_HEADER_ORDERED_BY"),
				RequestDate:  v.GetInt("QB_FIELD_HEADER_REQUEST_DATE"),
				DeliveryDate: v.GetInt("QB_FIELD_HEADER_DELIVERY_DATE"),
			},
			LineItemFields: LineItemFieldIDs{
				RelatedOrder: v.GetInt("QB_FIELD_LINE_RELATED_ORDER"),
				ItemName:     v.GetInt("QB_FIELD_LINE_ITEM_NAME"),
				Description:  v.GetInt("QB_FIELD_LINE_DESCRIPTION"),
				Quantity:     v.GetInt("QB_FIELD_LINE_QTY"),
				RelatedUOM:   v.GetInt("QB_FIELD_LINE_RELATED_UOM"),
			},
			RecordIDField: v.GetInt("QB_FIELD_RECORD_ID"),
		},
		Firebase: FirebaseConfig{
			APIKey:    v.GetString("FIREBASE_API_KEY"),
			ProjectID: v.GetString("FIREBASE_PROJECT_ID"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "60s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("JOBS_TABLE", "buy4q98bb")
	v.SetDefault("CONTACTS_TABLE", "buzhqi64n")

	// Field ids observed on the live tables.
	v.SetDefault("QB_FIELD_HEADER_RELATED_JOB", 7)
	v.SetDefault("QB_FIELD_HEADER_ORDERED_BY", 11)
	v.SetDefault("QB_FIELD_HEADER_REQUEST_DATE", 12)
	v.SetDefault("QB_FIELD_HEADER_DELIVERY_DATE", 13)
	v.SetDefault("QB_FIELD_LINE_RELATED_ORDER", 6)
	v.SetDefault("QB_FIELD_LINE_ITEM_NAME", 8)
	v.SetDefault("QB_FIELD_LINE_DESCRIPTION", 10)
	v.SetDefault("QB_FIELD_LINE_QTY", 11)
	v.SetDefault("QB_FIELD_LINE_RELATED_UOM", 12)
	v.SetDefault("QB_FIELD_RECORD_ID", 3)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

func firstNonEmpty(v *viper.Viper, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(v.GetString(key)); val != "" {
			return val
		}
	}
	return ""
}

// CleanRealmHostname strips a protocol prefix and trailing slash. The realm
// goes into a header, not the URL, so it must be a bare hostname.
func CleanRealmHostname(hostname string) string {
	h := strings.TrimSpace(hostname)
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	h = strings.TrimSuffix(h, "/")
	return h
}

// MissingQuickBaseKeys reports every required QuickBase setting that is
// absent, so the operator sees the full list at once.
func (c *Config) MissingQuickBaseKeys() []string {
	var missing []string
	if c.QuickBase.RealmHostname == "" {
		missing = append(missing, "QB_REALM_HOSTNAME (or QUICKBASE_REALM_HOSTNAME)")
	}
	if c.QuickBase.UserToken == "" {
		missing = append(missing, "QB_USER_TOKEN (or QUICKBASE_API_TOKEN)")
	}
	if c.QuickBase.OrderSubmissionsTable == "" {
		missing = append(missing, "ORDER_SUBMISSIONS table ID")
	}
	if c.QuickBase.LineItemsTable == "" {
		missing = append(missing, "ORDER_SUBMISSIONS_LINEITEMS table ID")
	}
	return missing
}
