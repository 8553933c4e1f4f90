package scheduling

import "sort"

// MergeSlots combines a doctor's weekly slots for one weekday, the overrides
// for one date and the start times of booked appointments on that date.
//
// Weekly labels form the base set and default to open. An override on a base
// label replaces its availability. An opening override outside the base set
// adds a slot; a blocking override outside it adds nothing unless the label
// is booked, so bookings are never hidden. Bookings on labels outside both
// sets are not reported. The result is ordered by time.
func MergeSlots(weekly []WeeklyAvailability, overrides []AvailabilityOverride, booked []TimeLabel) []SlotView {
	slots := make(map[TimeLabel]*SlotView, len(weekly)+len(overrides))
	for _, w := range weekly {
		slots[w.StartTime] = &SlotView{Time: w.StartTime, IsAvailable: true, Source: SourceOpenDefault}
	}

	taken := make(map[TimeLabel]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}

	for _, o := range overrides {
		source := SourceOpenOverride
		if !o.IsAvailable {
			source = SourceBlockedOverride
		}
		if v, ok := slots[o.StartTime]; ok {
			v.IsAvailable = o.IsAvailable
			v.Source = source
			continue
		}
		if o.IsAvailable || taken[o.StartTime] {
			slots[o.StartTime] = &SlotView{Time: o.StartTime, IsAvailable: o.IsAvailable, Source: source}
		}
	}

	out := make([]SlotView, 0, len(slots))
	for label, v := range slots {
		v.IsBooked = taken[label]
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Minutes() < out[j].Time.Minutes() })
	return out
}

// VisibleSlots filters views down to slots shown to a patient: open slots plus
// any booked slot, whatever its availability.
func VisibleSlots(views []SlotView) []SlotView {
	out := make([]SlotView, 0, len(views))
	for _, v := range views {
		if v.IsAvailable || v.IsBooked {
			out = append(out, v)
		}
	}
	return out
}

// findSlot returns the view for label, if the resolution contains it.
func findSlot(views []SlotView, label TimeLabel) (SlotView, bool) {
	for _, v := range views {
		if v.Time == label {
			return v, true
		}
	}
	return SlotView{}, false
}
