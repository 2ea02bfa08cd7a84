package models

// Tag is a free-standing label. Images reference tags but never own
// them: deleting an image leaves its tags in place.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
