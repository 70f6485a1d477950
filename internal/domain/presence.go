package domain

import "time"

// InstanceInfo is the heartbeat a relay instance advertises to its peers.
type InstanceInfo struct {
	InstanceID  string    `json:"instanceId"`
	Version     string    `json:"version"`
	Connections int       `json:"connections"`
	HeartbeatAt time.Time `json:"heartbeatAt"`
}
