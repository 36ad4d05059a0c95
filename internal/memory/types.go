// Package memory defines the data model shared across the store, retriever,
// and tracker: UI state snapshots, the tagged-union Observation record, and
// the person/embedding rows persisted alongside it.
package memory

import "time"

// UIElement is one element record inside a denoised accessibility tree.
type UIElement struct {
	Index    int    `json:"index"`
	ClassName string `json:"class_name"`
	Text     string `json:"text"`
	Bounds   string `json:"bounds"`
}

// PhoneState is the coarse package/activity/editability triple returned
// alongside every UIState.
type PhoneState struct {
	PackageName  string `json:"package_name"`
	ActivityName string `json:"activity_name"`
	IsEditable   bool   `json:"is_editable"`
}

// UIState is an immutable snapshot of the device at one instant. It is
// never persisted on its own; it only lives in the Tracker's in-process
// buffers.
type UIState struct {
	ID           string      `json:"id"`
	DenoisedText string      `json:"denoised_text"`
	FocusedID    *int        `json:"focused_id,omitempty"`
	Elements     []UIElement `json:"ui_elements"`
	Phone        PhoneState  `json:"phone_state"`
	RawTree      []byte      `json:"-"`
	ObservedAt   time.Time   `json:"observed_at"`
}

// ChangeSource identifies whether a UIStateChange was observed passively by
// the poller or produced as the direct result of an executed command.
type ChangeSource string

const (
	ChangeSourceObservation ChangeSource = "observation"
	ChangeSourceCommand     ChangeSource = "command"
)

// ChangeType is the deterministic classification of a UIStateChange.
type ChangeType string

const (
	ChangeTypeAppSwitch ChangeType = "APP_SWITCH"
	ChangeTypeChanged   ChangeType = "CHANGED"
	ChangeTypeNoChange  ChangeType = "NO_CHANGE"
)

// ClassifyChange applies the deterministic rule from the data model: a
// different package is always an app switch; an identical package, activity,
// and focused element is no change; anything else is a plain change.
func ClassifyChange(before, after UIState) ChangeType {
	if before.Phone.PackageName != after.Phone.PackageName {
		return ChangeTypeAppSwitch
	}
	if before.Phone.ActivityName == after.Phone.ActivityName && sameFocus(before.FocusedID, after.FocusedID) {
		return ChangeTypeNoChange
	}
	return ChangeTypeChanged
}

func sameFocus(a, b *int) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// UIStateChange is a transition record between two UI states.
type UIStateChange struct {
	Timestamp  time.Time    `json:"timestamp"`
	Before     UIState      `json:"before"`
	After      UIState      `json:"after"`
	Source     ChangeSource `json:"source"`
	ChangeType ChangeType   `json:"change_type"`
}

// UIStateSnapshot is the compact form handed to the Inferencer.
type UIStateSnapshot struct {
	DenoisedText string    `json:"denoised_text"`
	Activity     string    `json:"activity"`
	Package      string    `json:"package"`
	Timestamp    time.Time `json:"timestamp"`
	IsAppSwitch  bool      `json:"is_app_switch"`
	SwitchNote   string    `json:"switch_note,omitempty"`
}

// SnapshotFromChange builds the compact Inferencer-facing snapshot from a
// non-NO_CHANGE transition.
func SnapshotFromChange(c UIStateChange) UIStateSnapshot {
	s := UIStateSnapshot{
		DenoisedText: c.After.DenoisedText,
		Activity:     c.After.Phone.ActivityName,
		Package:      c.After.Phone.PackageName,
		Timestamp:    c.Timestamp,
	}
	if c.ChangeType == ChangeTypeAppSwitch {
		s.IsAppSwitch = true
		s.SwitchNote = "APP SWITCH: from " + c.Before.Phone.PackageName + " to " + c.After.Phone.PackageName
	}
	return s
}

// MemoryType is the Observation discriminator.
type MemoryType string

const (
	MemoryTypeLongTermPeople        MemoryType = "LongTermPeople"
	MemoryTypeLongTermPreferences   MemoryType = "LongTermPreferences"
	MemoryTypeShortTermPreferences  MemoryType = "ShortTermPreferences"
	MemoryTypeShortTermContent      MemoryType = "ShortTermContent"
)

// Observation is a tagged-union record: the discriminator is MemoryType and
// only the fields relevant to that variant are populated, mirroring the
// structured store's wide-table-with-nulls layout.
type Observation struct {
	ID        string     `json:"id"`
	MemoryType MemoryType `json:"memory_type"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Importance float64   `json:"importance"`
	Node      string     `json:"node_content"`
	Edge      string     `json:"edge_type,omitempty"`
	Recurrence int       `json:"recurrence,omitempty"`

	// LongTermPeople
	TargetEntityID   string `json:"target_entity_id,omitempty"`
	TargetEntityType string `json:"target_entity_type,omitempty"`
	PrimaryChannel   string `json:"primary_communication_channel,omitempty"`

	// LongTermPreferences / ShortTermPreferences / ShortTermContent
	SourceEntityID   string `json:"source_entity_id,omitempty"`
	SourceEntityType string `json:"source_entity_type,omitempty"`

	// ShortTermContent
	ContentID string `json:"content_id,omitempty"`
}

// Valid checks the invariants from §3: memory_type set, node non-empty,
// importance in [0,1], id non-empty.
func (o Observation) Valid() bool {
	if o.ID == "" || o.Node == "" {
		return false
	}
	if o.Importance < 0 || o.Importance > 1 {
		return false
	}
	switch o.MemoryType {
	case MemoryTypeLongTermPeople, MemoryTypeLongTermPreferences, MemoryTypeShortTermPreferences, MemoryTypeShortTermContent:
		return true
	default:
		return false
	}
}

// InterpersonalRelationship is a person row.
type InterpersonalRelationship struct {
	ID                      string    `json:"id"`
	FirstName               string    `json:"first_name"`
	LastName                string    `json:"last_name,omitempty"`
	FullName                string    `json:"full_name"`
	Platform                string    `json:"platform,omitempty"`
	PlatformHandle          string    `json:"platform_handle,omitempty"`
	RelationshipDescription string    `json:"relationship_description"`
	RelationshipVector      []float32 `json:"relationship_vector,omitempty"`
	LastInteractedAt        *time.Time `json:"last_interacted_at,omitempty"`
	InteractionCount        int       `json:"interaction_count"`
}

// TextEmbeddingLog is a semantic-memory row keyed by its owning observation.
type TextEmbeddingLog struct {
	ID              string    `json:"id"`
	ObservationID   string    `json:"observation_id"`
	ObservationText string    `json:"observation_text"`
	EmbeddingVector []float32 `json:"embedding_vector"`
	CreatedAt       time.Time `json:"created_at"`
}
