package offering

import (
	"sort"
	"time"
)

// Snapshot is the full set of offerings captured in one fetch cycle.
type Snapshot struct {
	Offerings []Offering `json:"offerings"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewSnapshot copies offerings into a snapshot stamped with updatedAt.
func NewSnapshot(offerings []Offering, updatedAt time.Time) Snapshot {
	copied := make([]Offering, len(offerings))
	copy(copied, offerings)
	return Snapshot{Offerings: copied, UpdatedAt: updatedAt.UTC()}
}

// Len returns the number of offerings.
func (s Snapshot) Len() int {
	return len(s.Offerings)
}

// IsEmpty reports whether the snapshot holds no offerings.
func (s Snapshot) IsEmpty() bool {
	return len(s.Offerings) == 0
}

// Index maps identity keys to offerings. Later duplicates win.
func (s Snapshot) Index() map[string]Offering {
	return IndexByKey(s.Offerings)
}

// IndexByKey maps identity keys to offerings. Later duplicates win.
func IndexByKey(offerings []Offering) map[string]Offering {
	index := make(map[string]Offering, len(offerings))
	for _, o := range offerings {
		index[o.Key] = o
	}
	return index
}

// SortByKey orders offerings by identity key in place.
func SortByKey(offerings []Offering) {
	sort.Slice(offerings, func(i, j int) bool {
		return offerings[i].Key < offerings[j].Key
	})
}
