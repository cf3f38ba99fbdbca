package board

import (
	"fmt"
	"maps"

	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
)

// decode converts a remote row into an entity of def. Rows without an id or with a stage
// outside the board's declared set are rejected. Unparseable timestamps decode as zero.
func decode(def domain.BoardDef, row gateway.Row) (domain.Entity, error) {
	id := row.ID()
	if id == "" {
		return domain.Entity{}, fmt.Errorf("row has no id")
	}
	stage, _ := row[def.StageField].(string)
	if !def.HasStage(stage) {
		return domain.Entity{}, fmt.Errorf("%w: %q", domain.ErrInvalidStage, stage)
	}

	e := domain.Entity{
		ID:     id,
		Stage:  stage,
		Fields: make(map[string]any, len(row)),
	}
	e.Title, _ = row[def.TitleField].(string)
	e.CreatedAt, _ = gateway.Time(row["created_at"])
	e.UpdatedAt, _ = gateway.Time(row["updated_at"])

	for k, v := range row {
		switch k {
		case "id", "created_at", "updated_at", def.StageField, def.TitleField:
			continue
		}
		e.Fields[k] = v
	}
	return e, nil
}

// newRow builds the insert payload: board defaults, then the caller's fields, then the
// initial stage, which always wins.
func newRow(def domain.BoardDef, fields map[string]any) gateway.Row {
	row := gateway.Row(maps.Clone(def.Defaults))
	if row == nil {
		row = gateway.Row{}
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		row[k] = v
	}
	row[def.StageField] = def.InitialStage()
	return row
}
