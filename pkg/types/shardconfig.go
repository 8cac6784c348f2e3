package types

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidShardConfiguration indicates ranges that do not partition the
// hash space disjointly and completely
var ErrInvalidShardConfiguration = errors.New("invalid shard configuration")

// ShardConfiguration assigns one hash range of one partitioning dimension to
// a shard group endpoint
type ShardConfiguration struct {
	Kind       DataElementKind `json:"kind" yaml:"kind"`
	RangeStart int32           `json:"rangeStart" yaml:"range_start"`
	RangeEnd   int32           `json:"rangeEnd" yaml:"range_end"` // inclusive
	Endpoint   string          `json:"endpoint" yaml:"endpoint"`
	Credential string          `json:"credential,omitempty" yaml:"credential,omitempty"`
}

// Contains reports whether hash falls inside this configuration's range
func (c *ShardConfiguration) Contains(hash int32) bool {
	return hash >= c.RangeStart && hash <= c.RangeEnd
}

// ShardConfigurationSet is the full routing configuration across all
// partitioning dimensions
type ShardConfigurationSet struct {
	Items []ShardConfiguration `json:"items" yaml:"items"`
}

// ForKind returns the configurations of one dimension sorted by range start
func (s *ShardConfigurationSet) ForKind(kind DataElementKind) []ShardConfiguration {
	var items []ShardConfiguration
	for _, item := range s.Items {
		if item.Kind == kind {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].RangeStart < items[j].RangeStart
	})
	return items
}

// Validate checks that for every dimension the ranges cover the full
// non-negative 32-bit hash space with no overlaps and no gaps
func (s *ShardConfigurationSet) Validate() error {
	for _, kind := range DataElementKinds {
		items := s.ForKind(kind)
		if len(items) == 0 {
			return fmt.Errorf("%w: no ranges for kind %s", ErrInvalidShardConfiguration, kind)
		}
		if items[0].RangeStart != 0 {
			return fmt.Errorf("%w: kind %s does not start at 0", ErrInvalidShardConfiguration, kind)
		}
		for i, item := range items {
			if item.RangeEnd < item.RangeStart {
				return fmt.Errorf("%w: kind %s has inverted range [%d,%d]",
					ErrInvalidShardConfiguration, kind, item.RangeStart, item.RangeEnd)
			}
			if item.Endpoint == "" {
				return fmt.Errorf("%w: kind %s range [%d,%d] has no endpoint",
					ErrInvalidShardConfiguration, kind, item.RangeStart, item.RangeEnd)
			}
			if i > 0 {
				prev := items[i-1]
				if item.RangeStart != prev.RangeEnd+1 {
					return fmt.Errorf("%w: kind %s ranges [%d,%d] and [%d,%d] are not contiguous",
						ErrInvalidShardConfiguration, kind,
						prev.RangeStart, prev.RangeEnd, item.RangeStart, item.RangeEnd)
				}
			}
		}
		if items[len(items)-1].RangeEnd != MaxHash {
			return fmt.Errorf("%w: kind %s does not cover the full hash space", ErrInvalidShardConfiguration, kind)
		}
	}
	return nil
}
