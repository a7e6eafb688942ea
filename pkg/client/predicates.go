package client

import "github.com/syncbench/tdk/pkg/protocol"

// ActivityIs holds when a replicator reports level.
func ActivityIs(level protocol.ActivityLevel) func(protocol.ReplicatorStatus) bool {
	return func(s protocol.ReplicatorStatus) bool {
		return s.Activity == level
	}
}

// AllPeersIn holds when at least one peer is listed and every peer reports
// level.
func AllPeersIn(level protocol.ActivityLevel) func(protocol.MultipeerStatus) bool {
	return func(s protocol.MultipeerStatus) bool {
		if len(s.Replicators) == 0 {
			return false
		}
		for _, peer := range s.Replicators {
			if peer.Status.Activity != level {
				return false
			}
		}
		return true
	}
}
