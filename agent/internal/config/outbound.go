package config

import (
	"fmt"
	"os"
)

// Outbound is the immutable per-process forwarding target. It is built once
// and shared by value with every connection goroutine.
type Outbound struct {
	RemoteHost string
	Key        string
	Hostname   string
	AuthKey    string
}

// NewOutbound resolves the auth key from the environment and the local
// hostname, and combines them with the stream key.
func NewOutbound(a AgentConfig, key string) (Outbound, error) {
	authKey, ok := os.LookupEnv(a.AuthKeyEnv)
	if !ok || authKey == "" {
		return Outbound{}, fmt.Errorf("config: $%s is not set", a.AuthKeyEnv)
	}

	hostname := a.Hostname
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return Outbound{}, fmt.Errorf("config: resolve hostname: %w", err)
		}
		hostname = h
	}

	return Outbound{
		RemoteHost: a.RemoteHost,
		Key:        key,
		Hostname:   hostname,
		AuthKey:    authKey,
	}, nil
}
