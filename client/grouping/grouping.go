// Package grouping classifies conversations into pinned/temporal buckets and
// keeps both the buckets and their contents deterministically ordered.
package grouping

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hrygo/divinesense-console/client/model"
	"github.com/hrygo/divinesense-console/client/timezone"
)

const (
	// PinnedKey is the bucket key for pinned conversations.
	PinnedKey = "pinned"
	// TodayKey is the bucket key for conversations touched today.
	TodayKey = "Today"
	// YesterdayKey is the bucket key for conversations touched yesterday.
	YesterdayKey = "Yesterday"
	// LastSevenDaysKey is the bucket key for the trailing week
	// (excluding today and yesterday).
	LastSevenDaysKey = "Last Seven Days"
)

// pinnedSortValue orders the pinned bucket above every date-based bucket.
const pinnedSortValue = int64(math.MaxInt64)

// Bucket is an ordered group of conversations sharing a classification.
// SortValue orders buckets among themselves, descending.
type Bucket struct {
	Key           string
	SortValue     int64
	Conversations []model.Conversation
}

// Reference holds the precomputed day boundaries classification compares
// against. Building it once per reduction keeps a batch of classifications
// consistent even across a midnight rollover.
type Reference struct {
	Today     time.Time
	Yesterday time.Time
	WeekAgo   time.Time
	Location  *time.Location
}

// NewReference computes the reference day boundaries for now in loc.
func NewReference(now time.Time, loc *time.Location) Reference {
	if loc == nil {
		loc = timezone.UTC
	}
	today := timezone.StartOfDay(now, loc)
	return Reference{
		Today:     today,
		Yesterday: today.AddDate(0, 0, -1),
		WeekAgo:   today.AddDate(0, 0, -7),
		Location:  loc,
	}
}

// Classify returns the bucket key and sort value for a conversation.
// Pinned conversations always classify into the pinned bucket regardless of
// their last-message time.
func Classify(conv model.Conversation, ref Reference) (string, int64) {
	if conv.Pinned {
		return PinnedKey, pinnedSortValue
	}

	day := timezone.StartOfDay(conv.LastMessageAt, ref.Location)
	switch {
	case !day.Before(ref.Today):
		// Future-dated timestamps (clock skew) clamp to today.
		return TodayKey, ref.Today.Unix()
	case day.Equal(ref.Yesterday):
		return YesterdayKey, ref.Yesterday.Unix()
	case !day.Before(ref.WeekAgo):
		return LastSevenDaysKey, ref.WeekAgo.Unix()
	default:
		month := timezone.StartOfMonth(day, ref.Location)
		return fmt.Sprintf("%s %d", month.Month(), month.Year()), month.Unix()
	}
}

// Group classifies every conversation into a keyed bucket map.
func Group(convs []model.Conversation, ref Reference) map[string]*Bucket {
	grouped := make(map[string]*Bucket)
	for _, conv := range convs {
		key, sortValue := Classify(conv, ref)
		bucket, ok := grouped[key]
		if !ok {
			bucket = &Bucket{Key: key, SortValue: sortValue}
			grouped[key] = bucket
		}
		bucket.Conversations = append(bucket.Conversations, conv)
	}
	return grouped
}

// Flatten converts a bucket map into the ordered bucket list: empty buckets
// dropped, buckets descending by sort value, conversations within each
// bucket ordered by Compare. Both sorts are stable.
func Flatten(grouped map[string]*Bucket) []*Bucket {
	buckets := make([]*Bucket, 0, len(grouped))
	for _, bucket := range grouped {
		if len(bucket.Conversations) == 0 {
			continue
		}
		buckets = append(buckets, bucket)
	}

	// Map iteration order is random; normalize by key before the stable
	// sort so equal sort values still flatten deterministically.
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key < buckets[j].Key })
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].SortValue > buckets[j].SortValue
	})

	for _, bucket := range buckets {
		SortConversations(bucket.Conversations)
	}
	return buckets
}

// Compare orders two conversations: pinned before unpinned, then most
// recent last-message time first. Returns a negative value when a sorts
// before b, zero when they tie.
func Compare(a, b model.Conversation) int {
	if a.Pinned != b.Pinned {
		if a.Pinned {
			return -1
		}
		return 1
	}
	if a.LastMessageAt.After(b.LastMessageAt) {
		return -1
	}
	if a.LastMessageAt.Before(b.LastMessageAt) {
		return 1
	}
	return 0
}

// SortConversations stably sorts a conversation slice in place by Compare.
func SortConversations(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return Compare(convs[i], convs[j]) < 0
	})
}
