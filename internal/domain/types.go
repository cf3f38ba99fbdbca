// Package domain defines the normalized types shared by the board views and the note store.
// These types describe the dashboard's entities independent of how the remote store encodes rows.
package domain

import (
	"maps"
	"time"
)

// StageDef is one column of a board: a stage id stored on the row and its display label.
type StageDef struct {
	ID    string // Value stored in the board's stage column (e.g. "IN_PROGRESS")
	Label string // Column header shown to users (e.g. "In Progress")
}

// Order names the column a collection is sorted by.
type Order struct {
	Column string
	Desc   bool
}

// BoardDef declares a kanban board backed by one remote table.
type BoardDef struct {
	Name       string     // Short name used on the command line (e.g. "tasks")
	Title      string     // Display title
	Table      string     // Remote table name
	StageField string     // Column holding the stage id
	TitleField string     // Required, non-empty column used as the card title
	URLField   string     // Optional column holding a link to open in the browser
	Stages     []StageDef // Ordered stage definitions; Stages[0] is the initial stage
	OrderBy    Order      // Load order

	// SequenceField, when set, receives the current entity count on insert
	// so new rows sort after existing ones.
	SequenceField string

	// TimeField, when set, receives the insert time if the payload leaves it empty.
	TimeField string

	// Defaults are merged under the payload of every inserted row.
	Defaults map[string]any

	// Columns lists every column selected from the remote table.
	Columns []string
}

// HasStage reports whether id is one of the board's declared stages.
func (d BoardDef) HasStage(id string) bool {
	return d.StageIndex(id) >= 0
}

// StageIndex returns the position of the stage in Stages, or -1.
func (d BoardDef) StageIndex(id string) int {
	for i, s := range d.Stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// InitialStage returns the stage new entities are created in.
func (d BoardDef) InitialStage() string {
	if len(d.Stages) == 0 {
		return ""
	}
	return d.Stages[0].ID
}

// Entity is a staged entity: a row that belongs to exactly one stage of its board.
type Entity struct {
	ID        string
	Stage     string
	Title     string
	Fields    map[string]any // Board-specific payload (everything but id, stage, title and timestamps)
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a copy whose payload map is not shared with e.
func (e Entity) Clone() Entity {
	e.Fields = maps.Clone(e.Fields)
	return e
}

// Text returns a payload field as a string, or "" if it is missing or not a string.
func (e Entity) Text(field string) string {
	if v, ok := e.Fields[field].(string); ok {
		return v
	}
	return ""
}

// Note is a searchable entity from the note store.
type Note struct {
	ID         string
	Title      string
	Content    string
	Tags       []string // Deduplicated, case-sensitive
	Source     string   // Where the note came from (e.g. "MEMORY.md")
	MemoryDate string   // YYYY-MM-DD, optional
	UpdatedAt  time.Time
}

// HasTag reports whether tag is a member of the note's tag set.
func (n Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NoteInput carries the user-entered fields for a new note.
type NoteInput struct {
	Title      string
	Content    string
	Tags       string // Comma separated
	Source     string
	MemoryDate string
}

// Note store table layout.
const (
	NotesTable        = "memories"
	NoteTitleColumn   = "title"
	NoteContentColumn = "content"
	NoteTagsColumn    = "tags"
)

// NoteColumns lists every column selected from the notes table.
var NoteColumns = []string{"id", "title", "content", "tags", "source", "memory_date", "updated_at"}

// NoteOrder is the default ordering of the note store.
var NoteOrder = Order{Column: "updated_at", Desc: true}
