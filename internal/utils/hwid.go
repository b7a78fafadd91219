package utils

import (
	"log/slog"

	"github.com/denisbrodbeck/machineid"
)

// HWID identifies this machine in the remote index without exposing the raw
// machine id.
var HWID = hwid()

func hwid() string {
	id, err := machineid.ProtectedID("syftvault")
	if err != nil {
		slog.Debug("machine id unavailable", "error", err)
		return "unknown"
	}
	return id[:16]
}
