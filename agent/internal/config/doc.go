// Package config loads and watches the agent configuration.
//
// The config file is optional. Load("") returns the defaults: remote host
// logger.seungjin.net, auth key from $LOGGER_AUTHKEY, sockets under
// /run/user/<uid>/seungjin-logger, 4096-byte reads, one message per read,
// connections closed on invalid UTF-8 or after 3 consecutive read errors.
//
// Outbound is the immutable forwarding target (remote host, stream key,
// hostname, auth key) built once by NewOutbound and shared read-only by every
// connection goroutine.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. The agent applies log_level on
// reload; every other field takes effect on restart.
package config
