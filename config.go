package moorsim

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	cfgMu     sync.Mutex
	cfgLoaded = false
	config    = EnvConfig{}
)

// EnvConfig is the environment configuration, read from conf.toml in the directory named by the
// MOORSIM_CONFIG environment variable. Every key has a default, so the file is optional.
type EnvConfig struct {
	OutputDir   string
	StorePath   string
	Parallelism int
	Influx      InfluxSettings
}

// InfluxSettings locates the InfluxDB server used by the exporter.
type InfluxSettings struct {
	Enabled     bool
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	BatchSize   uint
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.output_path", ".")
	v.SetDefault("general.parallelism", runtime.NumCPU())
	v.SetDefault("store.path", "moorsim.db")
	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "moorsim")
	v.SetDefault("influx.bucket", "moorsim")
	v.SetDefault("influx.measurement", "vessel")
	v.SetDefault("influx.batch_size", 2500)
}

// LoadEnvConfig reads dir/conf.toml. An empty dir only applies the defaults and the MOORSIM_*
// environment overrides (e.g. MOORSIM_INFLUX_TOKEN).
func LoadEnvConfig(dir string) (EnvConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("moorsim")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if dir != "" {
		v.SetConfigName("conf")
		v.SetConfigType("toml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			return EnvConfig{}, fmt.Errorf("%s/conf.toml: %w", dir, err)
		}
	}
	conf := EnvConfig{
		OutputDir:   v.GetString("general.output_path"),
		StorePath:   v.GetString("store.path"),
		Parallelism: v.GetInt("general.parallelism"),
		Influx: InfluxSettings{
			Enabled:     v.GetBool("influx.enabled"),
			URL:         v.GetString("influx.url"),
			Token:       v.GetString("influx.token"),
			Org:         v.GetString("influx.org"),
			Bucket:      v.GetString("influx.bucket"),
			Measurement: v.GetString("influx.measurement"),
			BatchSize:   v.GetUint("influx.batch_size"),
		},
	}
	if conf.Parallelism < 1 {
		return EnvConfig{}, invalidf("general.parallelism must be positive, got %d", conf.Parallelism)
	}
	if conf.Influx.Enabled && (conf.Influx.URL == "" || conf.Influx.Bucket == "") {
		return EnvConfig{}, invalidf("influx is enabled without a url or bucket")
	}
	return conf, nil
}

// envConfig returns the cached environment configuration.
func envConfig() (EnvConfig, error) {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	if cfgLoaded {
		return config, nil
	}
	conf, err := LoadEnvConfig(os.Getenv("MOORSIM_CONFIG"))
	if err != nil {
		return conf, err
	}
	config, cfgLoaded = conf, true
	return config, nil
}

// resetEnvConfig forgets the cached configuration.
func resetEnvConfig() {
	cfgMu.Lock()
	cfgLoaded = false
	cfgMu.Unlock()
}
