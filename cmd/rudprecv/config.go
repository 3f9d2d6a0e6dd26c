package main

import (
	"encoding/json"
	"os"
)

// Config overlays command-line flags with a JSON file, adapted from
// kcptun's server/config.go.
type Config struct {
	Listen     string `json:"listen"`
	OutDir     string `json:"outdir"`
	SnmpLog    string `json:"snmplog"`
	SnmpPeriod int    `json:"snmpperiod"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
