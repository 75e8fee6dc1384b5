// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/parley-rtc/parley/lib/config"
)

// ICEConfig holds the ICE servers for new PeerConnections.
type ICEConfig struct {
	// Servers are tried in order during candidate gathering.
	Servers []webrtc.ICEServer
}

// ICEConfigFromServers converts configured STUN/TURN entries. Entries
// without URLs are skipped; an empty result means host candidates only.
func ICEConfigFromServers(servers []config.ICEServer) ICEConfig {
	var ice ICEConfig
	for _, server := range servers {
		if len(server.URLs) == 0 {
			continue
		}
		entry := webrtc.ICEServer{URLs: server.URLs}
		if server.Username != "" || server.Credential != "" {
			entry.Username = server.Username
			entry.Credential = server.Credential
		}
		ice.Servers = append(ice.Servers, entry)
	}
	return ice
}
