package index

// RowMap maps index rows to the snippets that own them and back.
// It is built once alongside an index and persisted with it.
type RowMap struct {
	owners   []int
	rows     [][]int
	snippets int
}

// NewRowMap creates a row map from the owning snippet of each row.
// snippetCount is the number of snippets in the corpus the rows were derived from.
func NewRowMap(owners []int, snippetCount int) RowMap {
	for _, o := range owners {
		if o+1 > snippetCount {
			snippetCount = o + 1
		}
	}

	rows := make([][]int, snippetCount)
	for row, owner := range owners {
		rows[owner] = append(rows[owner], row)
	}

	ownersCopy := make([]int, len(owners))
	copy(ownersCopy, owners)

	return RowMap{
		owners:   ownersCopy,
		rows:     rows,
		snippets: snippetCount,
	}
}

// Len returns the number of rows.
func (m RowMap) Len() int {
	return len(m.owners)
}

// SnippetCount returns the number of snippets the map was built for.
func (m RowMap) SnippetCount() int {
	return m.snippets
}

// Snippet returns the snippet ID owning row.
func (m RowMap) Snippet(row int) (int, bool) {
	if row < 0 || row >= len(m.owners) {
		return 0, false
	}
	return m.owners[row], true
}

// Rows returns the rows owned by a snippet.
func (m RowMap) Rows(snippet int) []int {
	if snippet < 0 || snippet >= len(m.rows) {
		return nil
	}
	rows := make([]int, len(m.rows[snippet]))
	copy(rows, m.rows[snippet])
	return rows
}

// ownerList returns the owning snippet of every row, in row order.
func (m RowMap) ownerList() []int {
	owners := make([]int, len(m.owners))
	copy(owners, m.owners)
	return owners
}
