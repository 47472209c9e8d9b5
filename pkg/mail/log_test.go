package mail

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/devmail/webapp/pkg/metrics"
)

func atHour(hour int) time.Time {
	return time.Date(2026, time.October, 19, hour, 30, 0, 0, time.Local)
}

func newTestLog(hour int) (*Log, *testingclock.FakePassiveClock) {
	clk := testingclock.NewFakePassiveClock(atHour(hour))
	return NewLog(clk, nil), clk
}

func TestLog_EmptyOnCreation(t *testing.T) {
	l, _ := newTestLog(9)

	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Snapshot())
	assert.Empty(t, l.Hours())
	for hour := 0; hour < HoursPerDay; hour++ {
		assert.Nil(t, l.Bucket(hour))
	}
}

func TestLog_SendRecordsUnderCurrentHour(t *testing.T) {
	l, _ := newTestLog(14)

	l.Send("a@x.com", "Confirm", "<p>hi</p>")

	assert.Equal(t, []Record{{Recipient: "a@x.com", Subject: "Confirm", Body: "<p>hi</p>"}}, l.Bucket(14))
	assert.Equal(t, []int{14}, l.Hours())
	assert.Nil(t, l.Bucket(13))
}

func TestLog_DuplicateWithinHourStoredOnce(t *testing.T) {
	l, _ := newTestLog(14)
	before := testutil.ToFloat64(metrics.MailDuplicates)

	l.Send("a@x.com", "Confirm", "<p>hi</p>")
	l.Send("a@x.com", "Confirm", "<p>hi</p>")
	require.Len(t, l.Bucket(14), 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MailDuplicates))

	l.Send("b@x.com", "Reset", "<p>bye</p>")
	assert.Len(t, l.Bucket(14), 2)
	assert.Equal(t, 2, l.Len())
}

func TestLog_SameTripleInDifferentHours(t *testing.T) {
	l, clk := newTestLog(8)

	l.Send("a@x.com", "Confirm", "<p>hi</p>")
	clk.SetTime(atHour(9))
	l.Send("a@x.com", "Confirm", "<p>hi</p>")

	assert.Len(t, l.Bucket(8), 1)
	assert.Len(t, l.Bucket(9), 1)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []int{8, 9}, l.Hours())
}

func TestLog_SameHourOnDifferentDaysSharesBucket(t *testing.T) {
	l, clk := newTestLog(23)

	l.Send("a@x.com", "Confirm", "<p>hi</p>")
	clk.SetTime(atHour(23).AddDate(0, 0, 1))
	l.Send("a@x.com", "Confirm", "<p>hi</p>")

	assert.Len(t, l.Bucket(23), 1)
}

func TestLog_FieldsCompareExactly(t *testing.T) {
	l, _ := newTestLog(0)

	records := []Record{
		{Recipient: "a@x.com", Subject: "S", Body: "B"},
		{Recipient: "A@x.com", Subject: "S", Body: "B"},
		{Recipient: "a@x.com", Subject: "S ", Body: "B"},
		{Recipient: "a@x.com", Subject: "S", Body: ""},
		{Recipient: "", Subject: "", Body: ""},
	}
	for _, r := range records {
		l.Send(r.Recipient, r.Subject, r.Body)
	}

	assert.ElementsMatch(t, records, l.Bucket(0))
}

func TestLog_SendEmailAlwaysSucceeds(t *testing.T) {
	l, _ := newTestLog(6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, l.SendEmail(ctx, "a@x.com", "Confirm", "<p>hi</p>"))
	assert.Len(t, l.Bucket(6), 1)
}

func TestLog_SnapshotIsACopy(t *testing.T) {
	l, _ := newTestLog(10)
	l.Send("a@x.com", "Confirm", "<p>hi</p>")

	snap := l.Snapshot()
	snap[10][0].Subject = "changed"
	snap[11] = []Record{{Recipient: "z@x.com"}}

	assert.Equal(t, "Confirm", l.Bucket(10)[0].Subject)
	assert.Nil(t, l.Bucket(11))
}

func TestLog_BucketIsSorted(t *testing.T) {
	l, _ := newTestLog(3)
	l.Send("c@x.com", "S", "B")
	l.Send("a@x.com", "S", "B")
	l.Send("b@x.com", "S", "B")

	got := l.Bucket(3)
	require.Len(t, got, 3)
	assert.Equal(t, "a@x.com", got[0].Recipient)
	assert.Equal(t, "b@x.com", got[1].Recipient)
	assert.Equal(t, "c@x.com", got[2].Recipient)
}

func TestLog_ConcurrentSends(t *testing.T) {
	l, clk := newTestLog(12)
	const workers, perWorker = 16, 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				l.Send(fmt.Sprintf("user%d@x.com", i), "Confirm", "<p>hi</p>")
				l.Send(fmt.Sprintf("w%d-%d@x.com", w, i), "Reset", "<p>bye</p>")
				_ = l.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, perWorker+workers*perWorker, l.Len())
	assert.Len(t, l.Bucket(12), perWorker+workers*perWorker)
	assert.Equal(t, atHour(12), clk.Now())
}

func TestNewLogDefaultsToWallClock(t *testing.T) {
	l := NewLog(nil, nil)
	before := time.Now().Hour()
	l.Send("a@x.com", "S", "B")
	after := time.Now().Hour()

	hours := l.Hours()
	require.Len(t, hours, 1)
	assert.Contains(t, []int{before, after}, hours[0])
}
