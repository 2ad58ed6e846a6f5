package types

import "fmt"

// EntityKind discriminates the three upload-bearing entity kinds.
type EntityKind string

const (
	EntityKindProject EntityKind = "project"
	EntityKindOption  EntityKind = "option"
	EntityKindRecord  EntityKind = "record"
)

// ParseEntityKind parses a kind from its wire form
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

func (k EntityKind) Valid() bool {
	switch k {
	case EntityKindProject, EntityKindOption, EntityKindRecord:
		return true
	}
	return false
}

func (k EntityKind) String() string {
	return string(k)
}

// EntityStatus is the lifecycle status of an entity
type EntityStatus string

const (
	EntityStatusDraft     EntityStatus = "draft"
	EntityStatusUploading EntityStatus = "uploading"
	EntityStatusCompleted EntityStatus = "completed"
	EntityStatusFailed    EntityStatus = "failed"
)

func (s EntityStatus) Valid() bool {
	switch s {
	case EntityStatusDraft, EntityStatusUploading, EntityStatusCompleted, EntityStatusFailed:
		return true
	}
	return false
}

func (s EntityStatus) String() string {
	return string(s)
}

// ArtifactStatus is the per-artifact upload status
type ArtifactStatus string

const (
	ArtifactStatusUploading ArtifactStatus = "uploading"
	ArtifactStatusCompleted ArtifactStatus = "completed"
	ArtifactStatusFailed    ArtifactStatus = "failed"
)

func (s ArtifactStatus) Valid() bool {
	switch s {
	case ArtifactStatusUploading, ArtifactStatusCompleted, ArtifactStatusFailed:
		return true
	}
	return false
}

func (s ArtifactStatus) String() string {
	return string(s)
}

// SessionStatus is the status of a chunked upload session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusExpired   SessionStatus = "expired"
)

func (s SessionStatus) String() string {
	return string(s)
}

// FileKind identifies a logical file slot on an entity
type FileKind string

const (
	FileKindModel              FileKind = "model"
	FileKindProcessedRecording FileKind = "processed_recording"
	FileKindRawRecording       FileKind = "raw_recording"
	FileKindContext            FileKind = "context"
	FileKindHeatmap            FileKind = "heatmap"
)

// ParseFileKind parses a file kind from its wire form
func ParseFileKind(s string) (FileKind, error) {
	k := FileKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown file kind %q", s)
	}
	return k, nil
}

func (k FileKind) Valid() bool {
	switch k {
	case FileKindModel, FileKindProcessedRecording, FileKindRawRecording, FileKindContext, FileKindHeatmap:
		return true
	}
	return false
}

func (k FileKind) String() string {
	return string(k)
}

// requiredFileKinds maps each entity kind to the file slots that must be
// completed before the entity can finalize.
var requiredFileKinds = map[EntityKind][]FileKind{
	EntityKindProject: {FileKindContext},
	EntityKindOption:  {FileKindModel},
	EntityKindRecord:  {FileKindProcessedRecording},
}

// optionalFileKinds maps each entity kind to the file slots it may carry in
// addition to the required ones.
var optionalFileKinds = map[EntityKind][]FileKind{
	EntityKindProject: {FileKindHeatmap},
	EntityKindOption:  nil,
	EntityKindRecord:  {FileKindRawRecording},
}

// RequiredFileKinds returns the required file slots for a kind
func RequiredFileKinds(kind EntityKind) []FileKind {
	return requiredFileKinds[kind]
}

// OptionalFileKinds returns the optional file slots for a kind
func OptionalFileKinds(kind EntityKind) []FileKind {
	return optionalFileKinds[kind]
}

// FinalURLKinds returns every file slot denormalized onto the entity at
// finalization, required first.
func FinalURLKinds(kind EntityKind) []FileKind {
	kinds := make([]FileKind, 0, len(requiredFileKinds[kind])+len(optionalFileKinds[kind]))
	kinds = append(kinds, requiredFileKinds[kind]...)
	kinds = append(kinds, optionalFileKinds[kind]...)
	return kinds
}

// IsRequiredFileKind reports whether fileKind is required for the entity kind
func IsRequiredFileKind(kind EntityKind, fileKind FileKind) bool {
	for _, k := range requiredFileKinds[kind] {
		if k == fileKind {
			return true
		}
	}
	return false
}

// AllowsFileKind reports whether the entity kind carries the file slot at all
func AllowsFileKind(kind EntityKind, fileKind FileKind) bool {
	for _, k := range FinalURLKinds(kind) {
		if k == fileKind {
			return true
		}
	}
	return false
}
