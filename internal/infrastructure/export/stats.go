package export

import "github.com/arkade-os/bvsnap/internal/core/domain"

// Stats summarizes an imported export.
type Stats struct {
	TotalRecords  int
	BigVectors    int
	MaxCheckpoint domain.Checkpoint
	MaxVersion    uint64
	// RecordsByOwner counts the records of every owner address.
	RecordsByOwner map[string]int
}

func newStats() *Stats {
	return &Stats{RecordsByOwner: make(map[string]int)}
}

func (s *Stats) add(record domain.VersionedRecord) {
	s.TotalRecords++
	if record.EffectiveCheckpoint > s.MaxCheckpoint {
		s.MaxCheckpoint = record.EffectiveCheckpoint
	}
	if record.Version > s.MaxVersion {
		s.MaxVersion = record.Version
	}
	if record.Owner != nil {
		s.RecordsByOwner[record.Owner.String()]++
	}
}

// Merge adds the counters of other to s.
func (s *Stats) Merge(other *Stats) {
	if other == nil {
		return
	}
	s.TotalRecords += other.TotalRecords
	s.BigVectors += other.BigVectors
	if other.MaxCheckpoint > s.MaxCheckpoint {
		s.MaxCheckpoint = other.MaxCheckpoint
	}
	if other.MaxVersion > s.MaxVersion {
		s.MaxVersion = other.MaxVersion
	}
	if s.RecordsByOwner == nil {
		s.RecordsByOwner = make(map[string]int)
	}
	for owner, count := range other.RecordsByOwner {
		s.RecordsByOwner[owner] += count
	}
}
