package contextbuilder

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/aof/store"
)

const manifestFileName = "context-manifest.json"

// LoadManifest reads inputs/context-manifest.json for a task. Absent, it
// returns the default manifest: the task card (always emitted separately)
// plus every file under inputs/ placed in the seed layer.
func LoadManifest(s *store.Store, taskID string) (Manifest, error) {
	data, err := s.ReadSideChannelFile(taskID, store.InputsDir, manifestFileName)
	if err != nil {
		return defaultManifest(), nil
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse context manifest for %s: %w", taskID, err)
	}
	return m, nil
}

func defaultManifest() Manifest {
	return Manifest{Refs: []Ref{{Layer: LayerSeed, Path: "**/*"}}}
}
