package httpapi

import "insightd/internal/config"

const defaultMaxBodyBytes int64 = 1 << 20

// settings are the process-wide HTTP options. Handlers read them per request.
var settings = struct {
	maxBody int64
	cors    config.CORSConfig
}{maxBody: defaultMaxBodyBytes}

// Configure applies the HTTP-facing parts of the daemon config. Call it
// before NewMux.
func Configure(cfg config.Config) {
	SetMaxBodyBytes(cfg.MaxBodyBytes)
	settings.cors = cfg.CORS
}

// SetMaxBodyBytes bounds JSON request bodies. Non-positive restores 1 MiB.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	settings.maxBody = n
}
