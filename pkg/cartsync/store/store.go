// Package store persists the device-local cart snapshot.
//
// Every backend keeps exactly one snapshot under a fixed key. Load never
// fails because of what was stored: a missing or undecodable payload loads
// as an empty cart. Errors are reserved for the storage itself being
// unreachable.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
)

// Store is the Local Cart Store.
type Store interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	Save(ctx context.Context, s domain.Snapshot) error
}

// DefaultKey is the storage key used by backends that need one.
const DefaultKey = "cartsync:snapshot"

const envelopeVersion = 1

type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Lines   domain.Snapshot `json:"lines"`
}

func encode(s domain.Snapshot) ([]byte, error) {
	if s == nil {
		s = domain.Snapshot{}
	}
	data, err := json.Marshal(envelope{
		Version: envelopeVersion,
		SavedAt: time.Now().UTC(),
		Lines:   s,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (domain.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", env.Version)
	}
	if env.Lines == nil {
		return domain.Snapshot{}, nil
	}
	return env.Lines, nil
}

// decodeOrEmpty applies the load contract: corrupt payloads become an empty
// snapshot and a warning.
func decodeOrEmpty(ctx context.Context, l *slog.Logger, backend string, data []byte) domain.Snapshot {
	s, err := decode(data)
	if err != nil {
		l.WarnContext(ctx, "discarding unreadable cart snapshot",
			slog.String("backend", backend),
			slog.String("error", err.Error()),
		)
		return domain.Snapshot{}
	}
	return s
}
