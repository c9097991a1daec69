package keys

import "strconv"

// BucketSize is the width of one event bucket in milliseconds (one hour).
const BucketSize int64 = 3_600_000

const (
	eventPrefix  = "rf:events:"
	flagPrefix   = "rf:flag:"
	flagIndexKey = "rf:flags"
)

// BucketStart floors a millisecond timestamp to the start of its bucket.
func BucketStart(ts int64) int64 {
	return (ts / BucketSize) * BucketSize
}

// EventBucket maps a millisecond timestamp to the storage key of the sorted
// set indexing its bucket. Timestamps inside the same hour yield the same key.
func EventBucket(ts int64) string {
	return eventPrefix + strconv.FormatInt(BucketStart(ts), 10)
}

// BucketStarts returns the ascending start times of every bucket whose
// interval intersects [from, to]. Empty when from > to.
func BucketStarts(from, to int64) []int64 {
	if from > to {
		return nil
	}
	first := BucketStart(from)
	last := BucketStart(to)
	out := make([]int64, 0, (last-first)/BucketSize+1)
	for b := first; b <= last; b += BucketSize {
		out = append(out, b)
	}
	return out
}

func Flag(uid string) string {
	return flagPrefix + uid
}

func FlagIndex() string {
	return flagIndexKey
}
