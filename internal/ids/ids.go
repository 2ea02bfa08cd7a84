package ids

import "github.com/segmentio/ksuid"

// New returns a sortable unique id for entities and blob name suffixes.
func New() string {
	return ksuid.New().String()
}
