// Package storagepath derives canonical object storage paths for uploaded
// files. Resolution is pure: the same chain, file kind and timestamp always
// produce the same path, and distinctness across uploads comes from the
// caller-supplied timestamp.
package storagepath

import (
	"fmt"
	"strings"

	"github.com/scenehub/scenehub-backend/internal/upload/types"
)

// Chain holds the ordered hierarchy identifiers from the project down to the
// scenario. Fields below the project are filled in only as far as the target
// file kind needs them.
type Chain struct {
	ProjectName string
	ProjectID   string
	OptionID    string
	ScenarioID  string
}

// Resolve maps a hierarchy chain, file kind and timestamp to the canonical
// storage path for that file slot.
func Resolve(chain Chain, fileKind types.FileKind, ts int64) (string, error) {
	if chain.ProjectID == "" {
		return "", fmt.Errorf("storagepath: project id is required")
	}

	root := projectRoot(chain)

	switch fileKind {
	case types.FileKindModel:
		if chain.OptionID == "" {
			return "", fmt.Errorf("storagepath: option id is required for %s", fileKind)
		}
		return fmt.Sprintf("%s/options/%s/model_%d.glb", root, chain.OptionID, ts), nil

	case types.FileKindProcessedRecording:
		if chain.OptionID == "" || chain.ScenarioID == "" {
			return "", fmt.Errorf("storagepath: option and scenario ids are required for %s", fileKind)
		}
		return fmt.Sprintf("%s/records/records_glb/%s/%s/processed_recording_%d.glb",
			root, chain.OptionID, chain.ScenarioID, ts), nil

	case types.FileKindRawRecording:
		if chain.OptionID == "" || chain.ScenarioID == "" {
			return "", fmt.Errorf("storagepath: option and scenario ids are required for %s", fileKind)
		}
		return fmt.Sprintf("%s/records/records_raw/%s/%s/raw_recording_%d.json",
			root, chain.OptionID, chain.ScenarioID, ts), nil

	case types.FileKindContext:
		return fmt.Sprintf("%s/context/context_%d.json", root, ts), nil

	case types.FileKindHeatmap:
		return fmt.Sprintf("%s/heatmaps/heatmap_%d.png", root, ts), nil

	default:
		return "", fmt.Errorf("storagepath: unknown file kind %q", fileKind)
	}
}

// EntityPrefixes returns the storage prefixes owned exclusively by the given
// entity. Used by the enumerate-and-diff deletion pass to catch objects that
// were written but never registered. The prefixes cover only the entity's own
// file slots: the project root also holds option and record objects, so a
// project sweep must stay out of those subtrees.
func EntityPrefixes(chain Chain, kind types.EntityKind) ([]string, error) {
	if chain.ProjectID == "" {
		return nil, fmt.Errorf("storagepath: project id is required")
	}

	root := projectRoot(chain)

	switch kind {
	case types.EntityKindProject:
		return []string{root + "/context/", root + "/heatmaps/"}, nil
	case types.EntityKindOption:
		if chain.OptionID == "" {
			return nil, fmt.Errorf("storagepath: option id is required")
		}
		return []string{fmt.Sprintf("%s/options/%s/", root, chain.OptionID)}, nil
	case types.EntityKindRecord:
		if chain.OptionID == "" || chain.ScenarioID == "" {
			return nil, fmt.Errorf("storagepath: option and scenario ids are required")
		}
		return []string{
			fmt.Sprintf("%s/records/records_glb/%s/%s/", root, chain.OptionID, chain.ScenarioID),
			fmt.Sprintf("%s/records/records_raw/%s/%s/", root, chain.OptionID, chain.ScenarioID),
		}, nil
	default:
		return nil, fmt.Errorf("storagepath: unknown entity kind %q", kind)
	}
}

func projectRoot(chain Chain) string {
	name := Sanitize(chain.ProjectName)
	if name == "" {
		return chain.ProjectID
	}
	return name + "_" + chain.ProjectID
}

// Sanitize normalizes a free-text name for use in a storage path: lowercase,
// runs of non-alphanumeric characters collapsed to a single underscore,
// leading and trailing underscores trimmed.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.TrimRight(b.String(), "_")
}
