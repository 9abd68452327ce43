package syncfolder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MarkerSnapshotName is the snapshot holding this device's sync marker.
const MarkerSnapshotName = "sync"

// Marker is the per-device sync state kept in the local database. LastSync
// is the ExportedAt of the newest bundle this device wrote or applied.
type Marker struct {
	LastSync time.Time `json:"last_sync"`
}

func (s *Service) loadMarker(ctx context.Context) (Marker, error) {
	payload, err := s.repo.LoadSnapshot(ctx, MarkerSnapshotName)
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if len(payload) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		return Marker{}, fmt.Errorf("decode sync marker: %w", err)
	}
	return m, nil
}

// advanceMarker moves LastSync forward to at. An older at leaves the marker
// unchanged.
func (s *Service) advanceMarker(ctx context.Context, at time.Time) error {
	m, err := s.loadMarker(ctx)
	if err != nil {
		return err
	}
	if !at.After(m.LastSync) {
		return nil
	}
	payload, err := json.Marshal(Marker{LastSync: at.UTC()})
	if err != nil {
		return fmt.Errorf("encode sync marker: %w", err)
	}
	return s.repo.SaveSnapshot(ctx, MarkerSnapshotName, payload)
}
