package search

import (
	"slices"

	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
)

func decodeNote(row gateway.Row) domain.Note {
	n := domain.Note{ID: row.ID()}
	n.Title, _ = row[domain.NoteTitleColumn].(string)
	n.Content, _ = row[domain.NoteContentColumn].(string)
	n.Source, _ = row["source"].(string)
	n.MemoryDate, _ = row["memory_date"].(string)
	n.UpdatedAt, _ = gateway.Time(row["updated_at"])
	for _, t := range gateway.Strings(row[domain.NoteTagsColumn]) {
		if t != "" && !slices.Contains(n.Tags, t) {
			n.Tags = append(n.Tags, t)
		}
	}
	return n
}

// gatewayFilter maps a query onto the note table's columns.
func gatewayFilter(q Query) gateway.Filter {
	return gateway.Filter{
		Text:        q.Text,
		TextColumns: []string{domain.NoteTitleColumn, domain.NoteContentColumn},
		Tag:         q.Tag,
		TagColumn:   domain.NoteTagsColumn,
	}
}
