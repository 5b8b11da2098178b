package op

// Field names are plain strings on the wire, but each entity type has a
// closed field set locally. Parsing to a variant up front gives the
// apply engine compile-time exhaustiveness while preserving the
// unknown-field-skips-with-log fallback for batches written by newer or
// older producers.

// QuailField enumerates the mutable fields of a quail profile.
type QuailField int

const (
	QuailName QuailField = iota
	QuailGender
	QuailRingColor
	QuailProfilePhoto
)

// Wire-level field name constants, shared by capture and apply.
const (
	FieldQuailName         = "name"
	FieldQuailGender       = "gender"
	FieldQuailRingColor    = "ring_color"
	FieldQuailProfilePhoto = "profile_photo"
)

// ParseQuailField maps a wire field name to its variant.
func ParseQuailField(s string) (QuailField, bool) {
	switch s {
	case FieldQuailName:
		return QuailName, true
	case FieldQuailGender:
		return QuailGender, true
	case FieldQuailRingColor:
		return QuailRingColor, true
	case FieldQuailProfilePhoto:
		return QuailProfilePhoto, true
	default:
		return 0, false
	}
}

// Canonical returns the canonical wire name, which is also the column
// the field materializes to.
func (f QuailField) Canonical() string {
	switch f {
	case QuailName:
		return FieldQuailName
	case QuailGender:
		return FieldQuailGender
	case QuailRingColor:
		return FieldQuailRingColor
	default:
		return FieldQuailProfilePhoto
	}
}

// EventField enumerates the mutable fields of a life event.
type EventField int

const (
	EventQuailID EventField = iota
	EventType
	EventDate
	EventNotes
)

const (
	FieldEventQuailID = "quail_id"
	FieldEventType    = "event_type"
	FieldEventDate    = "event_date"
	FieldEventNotes   = "notes"
)

// ParseEventField maps a wire field name to its variant. "type" and
// "date" are accepted as historical aliases written by early producers.
func ParseEventField(s string) (EventField, bool) {
	switch s {
	case FieldEventQuailID:
		return EventQuailID, true
	case FieldEventType, "type":
		return EventType, true
	case FieldEventDate, "date":
		return EventDate, true
	case FieldEventNotes:
		return EventNotes, true
	default:
		return 0, false
	}
}

// Canonical returns the canonical wire name and column for the field.
func (f EventField) Canonical() string {
	switch f {
	case EventQuailID:
		return FieldEventQuailID
	case EventType:
		return FieldEventType
	case EventDate:
		return FieldEventDate
	default:
		return FieldEventNotes
	}
}

// EggField enumerates the mutable fields of a daily egg record.
type EggField int

const (
	EggRecordDate EggField = iota
	EggTotal
	EggNotes
)

const (
	FieldEggRecordDate = "record_date"
	FieldEggTotal      = "total_eggs"
	FieldEggNotes      = "notes"
)

// ParseEggField maps a wire field name to its variant. "date" and
// "count" are historical aliases.
func ParseEggField(s string) (EggField, bool) {
	switch s {
	case FieldEggRecordDate, "date":
		return EggRecordDate, true
	case FieldEggTotal, "count":
		return EggTotal, true
	case FieldEggNotes:
		return EggNotes, true
	default:
		return 0, false
	}
}

// Canonical returns the canonical wire name and column for the field.
func (f EggField) Canonical() string {
	switch f {
	case EggRecordDate:
		return FieldEggRecordDate
	case EggTotal:
		return FieldEggTotal
	default:
		return FieldEggNotes
	}
}

// PhotoField enumerates the mutable fields of a photo metadata record.
type PhotoField int

const (
	PhotoQuailID PhotoField = iota
	PhotoEventID
	PhotoRelativePath
	PhotoRelativeThumb
)

const (
	FieldPhotoQuailID       = "quail_id"
	FieldPhotoEventID       = "event_id"
	FieldPhotoRelativePath  = "relative_path"
	FieldPhotoRelativeThumb = "relative_thumb"
)

// ParsePhotoField maps a wire field name to its variant.
func ParsePhotoField(s string) (PhotoField, bool) {
	switch s {
	case FieldPhotoQuailID:
		return PhotoQuailID, true
	case FieldPhotoEventID:
		return PhotoEventID, true
	case FieldPhotoRelativePath, "relative":
		return PhotoRelativePath, true
	case FieldPhotoRelativeThumb, "thumb":
		return PhotoRelativeThumb, true
	default:
		return 0, false
	}
}

// Canonical returns the canonical wire name and column for the field.
func (f PhotoField) Canonical() string {
	switch f {
	case PhotoQuailID:
		return FieldPhotoQuailID
	case PhotoEventID:
		return FieldPhotoEventID
	case PhotoRelativePath:
		return FieldPhotoRelativePath
	default:
		return FieldPhotoRelativeThumb
	}
}

// ResolveField normalizes a wire field name for an entity to its
// canonical column name. The second result reports whether the field
// belongs to the entity's closed set.
func ResolveField(entity EntityType, field string) (string, bool) {
	switch entity {
	case EntityQuail:
		if f, ok := ParseQuailField(field); ok {
			return f.Canonical(), true
		}
	case EntityEvent:
		if f, ok := ParseEventField(field); ok {
			return f.Canonical(), true
		}
	case EntityEgg:
		if f, ok := ParseEggField(field); ok {
			return f.Canonical(), true
		}
	case EntityPhoto:
		if f, ok := ParsePhotoField(field); ok {
			return f.Canonical(), true
		}
	}

	return "", false
}

// IsCounter reports whether the field accepts Increment mutations.
// Only the egg total is counter-typed.
func IsCounter(entity EntityType, column string) bool {
	return entity == EntityEgg && column == FieldEggTotal
}

// Nullable reports whether the column accepts a null value. Mirrors the
// schema: creation-time fields are NOT NULL with defaults, optional
// detail fields are nullable.
func Nullable(entity EntityType, column string) bool {
	switch entity {
	case EntityQuail:
		return column == FieldQuailRingColor || column == FieldQuailProfilePhoto
	case EntityEvent:
		return column == FieldEventNotes
	case EntityEgg:
		return column == FieldEggNotes
	case EntityPhoto:
		return column != FieldPhotoRelativePath
	default:
		return false
	}
}
