// Package config provides configuration management for nfops
package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

// Provider defines the interface for configuration providers.
type Provider interface {
	// GetConfig returns the current application configuration.
	GetConfig() *Settings
	// SetConfig sets the application configuration.
	SetConfig(c *Settings)
	// InitConfig initializes the application configuration.
	InitConfig() (*Settings, error)
	// SetConfigFilePath sets the configuration file path.
	SetConfigFilePath(p string)
}

// defaultConfigProvider implements the Provider interface.
type defaultConfigProvider struct {
	cfg        *Settings
	configFile string
}

// NewDefaultConfigProvider creates a new default config provider.
func NewDefaultConfigProvider() Provider {
	return &defaultConfigProvider{}
}

// Supported workload runtimes.
const (
	RuntimePebble  = "pebble"
	RuntimeSystemd = "systemd"
	RuntimeFake    = "fake"
)

// Default configuration values for nfops.
const (
	DefaultStateFile         = "/var/lib/nfops/state.json"
	DefaultDBPath            = "/var/lib/nfops/relations.db"
	DefaultDescriptorDir     = "/etc/opt/nfops/units"
	DefaultRuntime           = RuntimePebble
	DefaultPebbleSocketDir   = "/charm/containers"
	DefaultSystemdUnitDir    = "/etc/systemd/system"
	DefaultUserMode          = false
	DefaultNamespace         = "default"
	DefaultLeader            = true
	DefaultActivationTimeout = 2 * time.Minute
	DefaultGraceDelay        = 5 * time.Second
	DefaultRetryAttempts     = 5
	DefaultRetryDelay        = 5 * time.Second
	DefaultResyncInterval    = 30 * time.Second
	DefaultPollInterval      = 2 * time.Second
	DefaultMetricsAddr       = ""
	DefaultStartTcpdump      = false
	DefaultVerbose           = false
)

// Settings represents the configuration for nfops.
type Settings struct {
	StateFile         string        `yaml:"stateFile" mapstructure:"stateFile"`
	DBPath            string        `yaml:"dbPath" mapstructure:"dbPath"`
	DescriptorDir     string        `yaml:"descriptorDir" mapstructure:"descriptorDir"`
	Runtime           string        `yaml:"runtime" mapstructure:"runtime"`
	PebbleSocketDir   string        `yaml:"pebbleSocketDir" mapstructure:"pebbleSocketDir"`
	SystemdUnitDir    string        `yaml:"systemdUnitDir" mapstructure:"systemdUnitDir"`
	UserMode          bool          `yaml:"userMode" mapstructure:"userMode"`
	Namespace         string        `yaml:"namespace" mapstructure:"namespace"`
	Kubeconfig        string        `yaml:"kubeconfig" mapstructure:"kubeconfig"`
	Leader            bool          `yaml:"leader" mapstructure:"leader"`
	LeaseName         string        `yaml:"leaseName" mapstructure:"leaseName"`
	PodName           string        `yaml:"podName" mapstructure:"podName"`
	UnitAddress       string        `yaml:"unitAddress" mapstructure:"unitAddress"`
	ActivationTimeout time.Duration `yaml:"activationTimeout" mapstructure:"activationTimeout"`
	GraceDelay        time.Duration `yaml:"graceDelay" mapstructure:"graceDelay"`
	RetryAttempts     int           `yaml:"retryAttempts" mapstructure:"retryAttempts"`
	RetryDelay        time.Duration `yaml:"retryDelay" mapstructure:"retryDelay"`
	ResyncInterval    time.Duration `yaml:"resyncInterval" mapstructure:"resyncInterval"`
	PollInterval      time.Duration `yaml:"pollInterval" mapstructure:"pollInterval"`
	MetricsAddr       string        `yaml:"metricsAddr" mapstructure:"metricsAddr"`
	StartTcpdump      bool          `yaml:"startTcpdump" mapstructure:"startTcpdump"`
	Verbose           bool          `yaml:"verbose" mapstructure:"verbose"`
}

// Defaults returns Settings populated with the default values.
func Defaults() *Settings {
	return &Settings{
		StateFile:         DefaultStateFile,
		DBPath:            DefaultDBPath,
		DescriptorDir:     DefaultDescriptorDir,
		Runtime:           DefaultRuntime,
		PebbleSocketDir:   DefaultPebbleSocketDir,
		SystemdUnitDir:    DefaultSystemdUnitDir,
		UserMode:          DefaultUserMode,
		Namespace:         DefaultNamespace,
		Leader:            DefaultLeader,
		ActivationTimeout: DefaultActivationTimeout,
		GraceDelay:        DefaultGraceDelay,
		RetryAttempts:     DefaultRetryAttempts,
		RetryDelay:        DefaultRetryDelay,
		ResyncInterval:    DefaultResyncInterval,
		PollInterval:      DefaultPollInterval,
		MetricsAddr:       DefaultMetricsAddr,
		StartTcpdump:      DefaultStartTcpdump,
		Verbose:           DefaultVerbose,
	}
}

func (p *defaultConfigProvider) SetConfig(c *Settings) {
	p.cfg = c
}

func (p *defaultConfigProvider) GetConfig() *Settings {
	return p.cfg
}

func (p *defaultConfigProvider) SetConfigFilePath(path string) {
	p.configFile = path
}

func (p *defaultConfigProvider) InitConfig() (*Settings, error) {
	c, err := initConfigInternal(p.configFile)
	if err != nil {
		return nil, err
	}
	p.cfg = c
	return p.cfg, nil
}

func initConfigInternal(configFile string) (*Settings, error) {
	cfg := Defaults()

	viper.SetDefault("stateFile", DefaultStateFile)
	viper.SetDefault("dbPath", DefaultDBPath)
	viper.SetDefault("descriptorDir", DefaultDescriptorDir)
	viper.SetDefault("runtime", DefaultRuntime)
	viper.SetDefault("pebbleSocketDir", DefaultPebbleSocketDir)
	viper.SetDefault("systemdUnitDir", DefaultSystemdUnitDir)
	viper.SetDefault("userMode", DefaultUserMode)
	viper.SetDefault("namespace", DefaultNamespace)
	viper.SetDefault("leader", DefaultLeader)
	viper.SetDefault("activationTimeout", DefaultActivationTimeout)
	viper.SetDefault("graceDelay", DefaultGraceDelay)
	viper.SetDefault("retryAttempts", DefaultRetryAttempts)
	viper.SetDefault("retryDelay", DefaultRetryDelay)
	viper.SetDefault("resyncInterval", DefaultResyncInterval)
	viper.SetDefault("pollInterval", DefaultPollInterval)
	viper.SetDefault("metricsAddr", DefaultMetricsAddr)
	viper.SetDefault("startTcpdump", DefaultStartTcpdump)
	viper.SetDefault("verbose", DefaultVerbose)

	viper.SetEnvPrefix("NFOPS")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(os.ExpandEnv("$HOME/.config/nfops"))
	viper.AddConfigPath("/etc/opt/nfops")
	viper.AddConfigPath(".")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
