package domain

import "fmt"

// Stage ids for the tasks board.
const (
	TaskTodo       = "TODO"
	TaskInProgress = "IN_PROGRESS"
	TaskDone       = "DONE"
)

// TasksBoard is the task kanban.
func TasksBoard() BoardDef {
	return BoardDef{
		Name:       "tasks",
		Title:      "Tasks Board",
		Table:      "tasks",
		StageField: "status",
		TitleField: "title",
		Stages: []StageDef{
			{ID: TaskTodo, Label: "To Do"},
			{ID: TaskInProgress, Label: "In Progress"},
			{ID: TaskDone, Label: "Done"},
		},
		OrderBy: Order{Column: "created_at", Desc: true},
		Defaults: map[string]any{
			"assignee": "aurora",
			"priority": "medium",
		},
		Columns: []string{"id", "title", "description", "status", "assignee", "priority", "created_at", "updated_at"},
	}
}

// ContentBoard is the content pipeline.
func ContentBoard() BoardDef {
	return BoardDef{
		Name:       "content",
		Title:      "Content Pipeline",
		Table:      "content_items",
		StageField: "stage",
		TitleField: "title",
		URLField:   "thumbnail_url",
		Stages: []StageDef{
			{ID: "idea", Label: "Idea"},
			{ID: "script", Label: "Script"},
			{ID: "thumbnail", Label: "Thumbnail"},
			{ID: "filming", Label: "Filming"},
			{ID: "published", Label: "Published"},
		},
		OrderBy: Order{Column: "created_at", Desc: true},
		Defaults: map[string]any{
			"platform": "twitter",
		},
		Columns: []string{"id", "title", "description", "stage", "script", "thumbnail_url", "platform", "notes", "created_at", "updated_at"},
	}
}

// TeamBoard groups team members by availability.
func TeamBoard() BoardDef {
	return BoardDef{
		Name:       "team",
		Title:      "Team Status",
		Table:      "team_members",
		StageField: "status",
		TitleField: "name",
		Stages: []StageDef{
			{ID: "idle", Label: "Idle"},
			{ID: "active", Label: "Active"},
			{ID: "offline", Label: "Offline"},
		},
		OrderBy:       Order{Column: "sort_order"},
		SequenceField: "sort_order",
		Defaults: map[string]any{
			"type":             "agent",
			"avatar":           "🤖",
			"responsibilities": []string{},
		},
		Columns: []string{"id", "name", "role", "type", "description", "responsibilities", "status", "current_task", "avatar", "sort_order", "created_at", "updated_at"},
	}
}

// CalendarBoard groups scheduled events by kind, soonest first.
func CalendarBoard() BoardDef {
	return BoardDef{
		Name:       "calendar",
		Title:      "Calendar",
		Table:      "calendar_events",
		StageField: "type",
		TitleField: "title",
		Stages: []StageDef{
			{ID: "task", Label: "Task"},
			{ID: "meeting", Label: "Meeting"},
			{ID: "reminder", Label: "Reminder"},
			{ID: "cron", Label: "Cron"},
		},
		OrderBy:   Order{Column: "start_time"},
		TimeField: "start_time",
		Defaults: map[string]any{
			"color": "#6366f1",
		},
		Columns: []string{"id", "title", "description", "start_time", "end_time", "type", "recurring", "color", "created_at", "updated_at"},
	}
}

// Boards returns every board preset in menu order.
func Boards() []BoardDef {
	return []BoardDef{TasksBoard(), ContentBoard(), TeamBoard(), CalendarBoard()}
}

// LookupBoard finds a preset by name.
func LookupBoard(name string) (BoardDef, error) {
	for _, b := range Boards() {
		if b.Name == name {
			return b, nil
		}
	}
	return BoardDef{}, fmt.Errorf("%w: board %q", ErrNotFound, name)
}
