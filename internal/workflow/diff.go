package workflow

// DiffOp is the change type of a single diff line. Merges only ever insert,
// so the vocabulary is unchanged/added; this is not a generic patch format.
type DiffOp string

const (
	DiffUnchanged DiffOp = "unchanged"
	DiffAdded     DiffOp = "added"
)

// DiffLine is one line-level change record, sufficient for a side-by-side
// before/after rendering.
type DiffLine struct {
	Op      DiffOp `json:"op"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"` // 1-based, 0 for added lines
	NewLine int    `json:"new_line"`           // 1-based
}

// Diff describes exactly one contiguous insertion into a document.
type Diff struct {
	Lines       []DiffLine `json:"lines"`
	InsertStart int        `json:"insert_start"` // 1-based first inserted line in the new document
	InsertEnd   int        `json:"insert_end"`   // 1-based last inserted line in the new document
}

// buildInsertionDiff constructs the diff for inserting `added` after line
// `at` (0-based index into original) of the original lines.
func buildInsertionDiff(original, added []string, at int) Diff {
	diff := Diff{Lines: make([]DiffLine, 0, len(original)+len(added))}
	newLine := 0

	emit := func(op DiffOp, text string, oldLine int) {
		newLine++
		diff.Lines = append(diff.Lines, DiffLine{Op: op, Text: text, OldLine: oldLine, NewLine: newLine})
	}

	for i := 0; i < at; i++ {
		emit(DiffUnchanged, original[i], i+1)
	}
	diff.InsertStart = newLine + 1
	for _, text := range added {
		emit(DiffAdded, text, 0)
	}
	diff.InsertEnd = newLine
	for i := at; i < len(original); i++ {
		emit(DiffUnchanged, original[i], i+1)
	}
	return diff
}
