package timeframe

// MaxAxisPoints bounds the axis so a bad range can never loop forever.
const MaxAxisPoints = 10000

// Axis is the dense, ordered bucket sequence covering a range.
// X holds UTC renderings and XShifted the timezone-local labels; both have
// the same length.
type Axis struct {
	X        []string
	XShifted []string
	index    map[string]int
}

// BuildAxis walks from the bucket containing r.GroupFrom up to r.GroupTo
// inclusive, one bucket at a time.
func BuildAxis(r *Range) *Axis {
	loc := r.Location
	layout := r.Bucket.Layout()

	a := &Axis{index: make(map[string]int)}
	current := TruncateToBucketInTimezone(r.GroupFrom, r.Bucket, loc)
	end := r.GroupTo.In(loc)

	for !current.After(end) && len(a.XShifted) < MaxAxisPoints {
		shifted := current.Format(layout)
		// A repeated local hour (DST fall-back) maps to its first slot.
		if _, seen := a.index[shifted]; !seen {
			a.index[shifted] = len(a.XShifted)
		}
		a.XShifted = append(a.XShifted, shifted)
		if r.UTCEquivalent {
			a.X = append(a.X, shifted)
		} else {
			a.X = append(a.X, current.UTC().Format(layout))
		}
		current = AdvanceBucket(current, r.Bucket)
	}

	return a
}

func (a *Axis) Len() int {
	return len(a.XShifted)
}

// IndexOf returns the position of a timezone-local label.
func (a *Axis) IndexOf(label string) (int, bool) {
	i, ok := a.index[label]
	return i, ok
}
