package lineitems

import (
	"strings"

	"github.com/joseph-ayodele/receipt-capture/internal/entity"
	"github.com/joseph-ayodele/receipt-capture/internal/transform"
)

// columnMatch pins a mapping column rule to a header column index.
type columnMatch struct {
	name  string
	index int
}

// Extract converts recognized tables into an ordered sequence of line items.
// Rows from every table are flattened into one sequence; table boundaries are
// not preserved. Returns an empty sequence when there are no tables or the
// mapping has no column definitions.
func Extract(tables []entity.Table, mapping *entity.LineItemMapping) []entity.LineItem {
	items := make([]entity.LineItem, 0)
	if len(tables) == 0 || mapping == nil || len(mapping.Columns) == 0 {
		return items
	}

	rules := mapping.FieldRules()
	for _, table := range tables {
		grid := buildGrid(table)
		if len(grid) == 0 {
			continue
		}

		matches := matchHeader(grid[0], mapping.Columns)
		if len(matches) == 0 {
			continue
		}

		for _, row := range grid[1:] {
			item := entity.LineItem{}
			for _, m := range matches {
				if cell := row[m.index]; cell != nil {
					item[m.name] = *cell
				}
			}
			if len(item) == 0 {
				continue
			}
			transform.Apply(rules, item)
			items = append(items, item)
		}
	}
	return items
}

// buildGrid reconstructs the dense rowCount x columnCount grid from the flat
// cell list. Cells outside the declared bounds are dropped.
func buildGrid(table entity.Table) [][]*string {
	if table.RowCount <= 0 || table.ColumnCount <= 0 {
		return nil
	}
	grid := make([][]*string, table.RowCount)
	for i := range grid {
		grid[i] = make([]*string, table.ColumnCount)
	}
	for _, cell := range table.Cells {
		if cell.RowIndex < 0 || cell.RowIndex >= table.RowCount ||
			cell.ColumnIndex < 0 || cell.ColumnIndex >= table.ColumnCount {
			continue
		}
		content := cell.Content
		grid[cell.RowIndex][cell.ColumnIndex] = &content
	}
	return grid
}

// matchHeader locates each column rule in the header row: the first header
// cell whose trimmed, lowercased text contains the rule's trimmed, lowercased
// name as a substring wins. Matching is independent per rule, so two rules
// may claim the same header cell. Unmatched rules contribute nothing.
func matchHeader(header []*string, columns []entity.ColumnRule) []columnMatch {
	matches := make([]columnMatch, 0, len(columns))
	for _, col := range columns {
		want := strings.ToLower(strings.TrimSpace(col.Name))
		for i, cell := range header {
			if cell == nil {
				continue
			}
			if strings.Contains(strings.ToLower(strings.TrimSpace(*cell)), want) {
				matches = append(matches, columnMatch{name: col.Name, index: i})
				break
			}
		}
	}
	return matches
}
