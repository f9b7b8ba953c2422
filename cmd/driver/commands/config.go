package commands

import "github.com/mosaicnetworks/ledgerdriver/src/driver"

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	NbNodes    int    `mapstructure:"nodes"`
	NbNotaries int    `mapstructure:"notaries"`
	InProcess  bool   `mapstructure:"in-process"`
	Webservers bool   `mapstructure:"webservers"`
	Debug      bool   `mapstructure:"debug"`
	Directory  string `mapstructure:"dir"`
	NodeBinary string `mapstructure:"node-binary"`
	StartPort  int    `mapstructure:"start-port"`
	LogLevel   string `mapstructure:"log"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		NbNodes:    2,
		NbNotaries: driver.DefaultClusterSize,
		NodeBinary: driver.DefaultNodeBinary,
		StartPort:  driver.DefaultStartPort,
		LogLevel:   "info",
	}
}
