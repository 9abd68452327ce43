package state

import (
	"encoding/json"
	"fmt"
)

// StudySnapshotName is the SnapshotStore name of a StudySnapshot.
const StudySnapshotName = "studies"

// StudySnapshot is the persisted subset of StudyStore.
type StudySnapshot struct {
	ActiveStudyID string `json:"active_study_id,omitempty"`
}

// ContrastSnapshot is the persisted subset of ContrastStore. It is empty:
// contrasts live entirely in the repository.
type ContrastSnapshot struct{}

// PersistStudyState selects the fields of a study store that survive restarts.
func PersistStudyState(activeStudyID string) StudySnapshot {
	return StudySnapshot{ActiveStudyID: activeStudyID}
}

// PersistContrastState selects the fields of a contrast store that survive
// restarts. There are none.
func PersistContrastState() ContrastSnapshot {
	return ContrastSnapshot{}
}

// DecodeStudySnapshot parses a payload written by a StudySnapshot.
// A nil or empty payload yields the zero snapshot.
func DecodeStudySnapshot(payload []byte) (StudySnapshot, error) {
	var snap StudySnapshot
	if len(payload) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(payload, &snap); err != nil {
		return StudySnapshot{}, fmt.Errorf("decode study snapshot: %w", err)
	}
	return snap, nil
}
