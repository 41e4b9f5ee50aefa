package chunking

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Per-file kinds end that file's extraction and are reported
// as scan errors; ErrRankConflict is raised when resolving a common layout.
var (
	ErrFileNotFound     = errors.New("file not found")
	ErrVariableNotFound = errors.New("variable not found")
	ErrCorruptMetadata  = errors.New("corrupt metadata")
	ErrRankConflict     = errors.New("rank conflict")
	ErrExtraction       = errors.New("extraction failed")
)

// RankConflictError names a variable whose chunk shapes disagree in rank,
// and the files on either side.
type RankConflictError struct {
	Variable    string
	Left, Right FileSet
	// LeftRank and RightRank are the conflicting ranks.
	LeftRank, RightRank int
}

func (e *RankConflictError) Error() string {
	return fmt.Sprintf("%s: variable %q has rank %d in [%s] and rank %d in [%s]",
		ErrRankConflict, e.Variable,
		e.LeftRank, strings.Join(e.Left.Sorted(), ", "),
		e.RightRank, strings.Join(e.Right.Sorted(), ", "))
}

// Is makes errors.Is(err, ErrRankConflict) match.
func (e *RankConflictError) Is(target error) bool {
	return target == ErrRankConflict
}

// Reason returns a short label for the kind of err, for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrFileNotFound):
		return "file_not_found"
	case errors.Is(err, ErrVariableNotFound):
		return "variable_not_found"
	case errors.Is(err, ErrCorruptMetadata):
		return "corrupt_metadata"
	case errors.Is(err, ErrRankConflict):
		return "rank_conflict"
	}
	return "extraction"
}
