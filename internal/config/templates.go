package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Template returns a commented starter config in format "toml" or "yaml".
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "toml":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config format: %s", format)
	}
}

// WriteTemplate writes the template matching path's extension.
func WriteTemplate(path string, overwrite bool) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format != "yaml" && format != "yml" {
		format = "toml"
	}
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `# z21d configuration
listen = ":21105"
# admin_addr = ":8021"
# admin_token = "" # bearer token for admin writes
cors_origins = []

[station]
serial_number = 0x1AF5
hardware_type = 0x0201
firmware_version = 0x0130
max_clients = 30
client_liveness = 20
tick_interval = "2s"
eviction = "lru" # lru | reject
verify_checksum = true

[store]
driver = "memory" # memory | sqlite
path = ""

[layout]
enabled = true
telemetry_interval = "5s"
`

const yamlTemplate = `# z21d configuration
listen: ":21105"
# admin_addr: ":8021"
# admin_token: "" # bearer token for admin writes
cors_origins: []

station:
  serial_number: 0x1AF5
  hardware_type: 0x0201
  firmware_version: 0x0130
  max_clients: 30
  client_liveness: 20
  tick_interval: "2s"
  eviction: "lru" # lru | reject
  verify_checksum: true

store:
  driver: "memory" # memory | sqlite
  path: ""

layout:
  enabled: true
  telemetry_interval: "5s"
`
