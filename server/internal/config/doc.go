// Package config loads the development sink configuration from the `sink:`
// section of a YAML file (the `agent:` key is ignored by the sink binary).
//
// Config fields:
//   - HTTPPort      port for forwarded messages and the read API (default 8080)
//   - Auth.Mode     "apikey" or "none"
//   - Auth.KeyEnv   environment variable holding the expected key (default LOGGER_AUTHKEY)
//   - Auth.Header   request header carrying the key (default AUTHKEY)
//   - TLS           cert_file/key_file; HTTPS when both are set
//   - Retention     how long stored messages stay readable (default 1h)
//   - MaxMessages   per-route cap (default 1000)
//   - MaxBodyBytes  per-message cap after decompression (default 1 MiB)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
