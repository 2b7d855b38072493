package config

import (
	"fmt"
	"os"
)

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `[app]
name = "wanotify"
addr = ":8080"
cors_origins = ["http://localhost:3000"]

[whatsapp]
transport = "loopback"
auth_path = "./auth_state"
session_id = "default"
# passphrase = "change-me"         # seals credential material at rest
default_number = "6282217417425"
default_message = "hallo_ada_orderan_dari_lynk"
reconnect_delay = "5s"
reinit_delay = "1s"
backoff_multiplier = 1.0
backoff_max = "0s"
send_timeout = "30s"

[directory]
path = "./subscribers.toml"

[ledger]
path = "./deliveries.jsonl"
`
