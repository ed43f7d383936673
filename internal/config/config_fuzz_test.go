package config

import (
	"testing"

	"gopkg.in/yaml.v3"
)

// FuzzConfigParsing tests config YAML unmarshaling with random input
func FuzzConfigParsing(f *testing.F) {
	f.Add([]byte(`tasks:
  debsums: false
  files: true
ssh:
  user: audit
  port: 2222
  remoteConnections: true
elevation: password
`))

	f.Add([]byte(`workers: 4
packageManager: rpm
cache:
  enabled: false
`))

	f.Add([]byte(`{}`))
	f.Add([]byte(``))
	f.Add([]byte(`invalid: [[[`))

	f.Fuzz(func(t *testing.T, data []byte) {
		cfg := Default()
		// Should not panic on any YAML input
		if err := yaml.Unmarshal(data, cfg); err == nil {
			_ = cfg.Validate()
		}
	})
}
