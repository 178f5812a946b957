package feed

import (
	"testing"

	"github.com/topicstream/topicstream/internal/models"
)

func watermark(v int) *int {
	return &v
}

func TestReadStateSet(t *testing.T) {
	rs := NewReadState([]int64{3, 1})

	if !rs.Contains(1) || !rs.Contains(3) {
		t.Fatal("seeded ids missing from read state")
	}
	if rs.Contains(2) {
		t.Error("unexpected membership for id 2")
	}

	rs.Add(2)
	rs.Add(2)
	if rs.Len() != 3 {
		t.Errorf("Len() = %d, want 3 after duplicate add", rs.Len())
	}

	rs.Remove(3)
	rs.Remove(3)
	if rs.Contains(3) {
		t.Error("id 3 still present after remove")
	}

	got := rs.IDs()
	want := []int64{1, 2}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
}

func TestReadStateIsRead(t *testing.T) {
	rs := NewReadState([]int64{7})

	tests := []struct {
		name        string
		topic       models.Topic
		syncEnabled bool
		want        bool
	}{
		{
			name:        "local mark wins regardless of sync",
			topic:       models.Topic{ID: 7, HighestPostNumber: 50},
			syncEnabled: false,
			want:        true,
		},
		{
			name:        "watermark at highest post with sync on",
			topic:       models.Topic{ID: 8, HighestPostNumber: 12, LastReadPostNumber: watermark(12)},
			syncEnabled: true,
			want:        true,
		},
		{
			name:        "watermark behind highest post",
			topic:       models.Topic{ID: 8, HighestPostNumber: 12, LastReadPostNumber: watermark(11)},
			syncEnabled: true,
			want:        false,
		},
		{
			name:        "watermark ignored when sync is off",
			topic:       models.Topic{ID: 8, HighestPostNumber: 12, LastReadPostNumber: watermark(12)},
			syncEnabled: false,
			want:        false,
		},
		{
			name:        "zero watermark never counts",
			topic:       models.Topic{ID: 8, HighestPostNumber: 0, LastReadPostNumber: watermark(0)},
			syncEnabled: true,
			want:        false,
		},
		{
			name:        "absent watermark never counts",
			topic:       models.Topic{ID: 8, HighestPostNumber: 12},
			syncEnabled: true,
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rs.IsRead(tt.topic, tt.syncEnabled); got != tt.want {
				t.Errorf("IsRead() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnreadCount(t *testing.T) {
	rs := NewReadState([]int64{1})
	topics := []models.Topic{
		{ID: 1},
		{ID: 2, HighestPostNumber: 12, LastReadPostNumber: watermark(12)},
		{ID: 3, HighestPostNumber: 12, LastReadPostNumber: watermark(5)},
		{ID: 4},
	}

	isRead := func(t models.Topic) bool { return rs.IsRead(t, true) }
	if got := UnreadCount(topics, isRead); got != 2 {
		t.Errorf("UnreadCount() = %d, want 2 with sync on", got)
	}

	isReadNoSync := func(t models.Topic) bool { return rs.IsRead(t, false) }
	if got := UnreadCount(topics, isReadNoSync); got != 3 {
		t.Errorf("UnreadCount() = %d, want 3 with sync off", got)
	}
}
