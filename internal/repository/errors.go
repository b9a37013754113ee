package repository

import "errors"

// ErrStateConflict indicates a conditional update matched no row because the target
// was already in a different state.
var ErrStateConflict = errors.New("repository: row state changed")

func paginate(page, pageSize int) (offset, limit int) {
	if pageSize <= 0 {
		return 0, -1
	}
	if page <= 0 {
		page = 1
	}
	return (page - 1) * pageSize, pageSize
}
