package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "tap":
		return tapTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
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

const tapTemplate = `listen = ":5673"
upstream = "localhost:5672"
admin_addr = ":9673"
admin_token = ""
cors_origins = ["http://localhost:3000"]
log_level = "info"
# schema = "amqp0-9-1.toml"

frame_max = 131072
read_buffer_size = 32768

connect_timeout = "5s"
handshake_timeout = "10s"
idle_timeout = "0s"
write_timeout = "15s"

trace_rate = 50.0
trace_burst = 100

[tls]
enabled = false
ca_file = ""
server_name = ""
insecure_skip_verify = false
`
