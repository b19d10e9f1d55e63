package rtsession

import (
	"time"

	"github.com/parleyhq/sessionkit/pkg/connection"
	"github.com/parleyhq/sessionkit/pkg/e2ee"
)

// EncryptionHealth grades how much of the membership holds a
// quantum-secured link.
type EncryptionHealth string

const (
	// HealthExcellent: at least 80% of participants quantum-secured.
	HealthExcellent EncryptionHealth = "excellent"

	// HealthGood: at least 50% quantum-secured.
	HealthGood EncryptionHealth = "good"

	// HealthPoor: some, but under 50%, quantum-secured.
	HealthPoor EncryptionHealth = "poor"

	// HealthDegraded: no quantum-secured link, or encryption disabled.
	HealthDegraded EncryptionHealth = "degraded"
)

// Stats is a point-in-time snapshot of the session.
type Stats struct {
	State             connection.State
	Duration          time.Duration
	Participants      int
	QuantumCapable    int
	Epoch             e2ee.Epoch
	EncryptionHealth  EncryptionHealth
	ReconnectAttempts int
	LastMessageAt     time.Time
}

// computeHealth grades the membership. An empty session with encryption
// enabled has no degraded links, so it grades excellent.
func computeHealth(participants, quantumCapable int, encryptionEnabled bool) EncryptionHealth {
	if !encryptionEnabled {
		return HealthDegraded
	}
	if participants == 0 {
		return HealthExcellent
	}

	ratio := float64(quantumCapable) / float64(participants)
	switch {
	case ratio >= 0.8:
		return HealthExcellent
	case ratio >= 0.5:
		return HealthGood
	case ratio > 0:
		return HealthPoor
	default:
		return HealthDegraded
	}
}
