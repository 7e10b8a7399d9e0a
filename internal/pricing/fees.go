package pricing

import (
	"maps"

	"github.com/kiwari-pos/catering/internal/enum"
)

// FeeSchedule maps a location to a fixed delivery fee. Locations it does not
// list, including the unspecified location, pay Default.
type FeeSchedule struct {
	fees    map[enum.Location]int64
	Default int64
}

// NewFeeSchedule copies fees into a schedule.
func NewFeeSchedule(fees map[enum.Location]int64, def int64) FeeSchedule {
	return FeeSchedule{fees: maps.Clone(fees), Default: def}
}

// Fee returns the delivery fee for loc.
func (s FeeSchedule) Fee(loc enum.Location) int64 {
	if fee, ok := s.fees[loc]; ok {
		return fee
	}
	return s.Default
}
