/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/devmail/webapp/pkg/metrics"
)

// HoursPerDay bounds the bucket keys of a Log: 0 through 23.
const HoursPerDay = 24

// Record is one logged send attempt. Two records with equal fields are the
// same record; Record is comparable and used directly as a set key.
type Record struct {
	Recipient string `json:"recipient" yaml:"recipient"`
	Subject   string `json:"subject" yaml:"subject"`
	Body      string `json:"body" yaml:"body"`
}

// Log records outgoing emails in memory instead of delivering them, bucketed
// by the local hour of day at which they were sent. It is safe for concurrent
// use. The log only grows; it is reclaimed when the process exits.
type Log struct {
	clock clock.PassiveClock
	log   *zap.SugaredLogger

	mu      sync.RWMutex
	buckets map[int]map[Record]struct{}
}

var _ EmailSender = (*Log)(nil)

// NewLog returns an empty log. A nil clock uses the wall clock.
func NewLog(clk clock.PassiveClock, log *zap.SugaredLogger) *Log {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Log{
		clock:   clk,
		log:     log.Named("mail-log"),
		buckets: make(map[int]map[Record]struct{}),
	}
}

// SendEmail records the email and always succeeds.
func (l *Log) SendEmail(_ context.Context, email, subject, htmlMessage string) error {
	l.Send(email, subject, htmlMessage)
	return nil
}

// Send records (recipient, subject, body) under the current local hour.
// Sending an identical triple again within the same hour is a no-op.
func (l *Log) Send(recipient, subject, body string) {
	hour := l.clock.Now().Local().Hour()
	rec := Record{Recipient: recipient, Subject: subject, Body: body}

	l.mu.Lock()
	bucket, ok := l.buckets[hour]
	if !ok {
		bucket = make(map[Record]struct{}, 1)
		l.buckets[hour] = bucket
	}
	_, exists := bucket[rec]
	if !exists {
		bucket[rec] = struct{}{}
	}
	l.mu.Unlock()

	if exists {
		metrics.MailDuplicates.Inc()
		l.log.Debugw("Duplicate email within hour ignored", "hour", hour, "recipient", recipient, "subject", subject)
		return
	}
	metrics.MailLogged.WithLabelValues(strconv.Itoa(hour)).Inc()
	metrics.MailLogRecords.Inc()
	l.log.Infow("Email recorded", "hour", hour, "recipient", recipient, "subject", subject, "bodyLength", len(body))
}

// Bucket returns the records logged during hour, sorted. It returns nil for an
// hour with no records, including hours outside 0-23.
func (l *Log) Bucket(hour int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedRecords(l.buckets[hour])
}

// Snapshot returns a copy of every non-empty bucket keyed by hour.
func (l *Log) Snapshot() map[int][]Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[int][]Record, len(l.buckets))
	for hour, bucket := range l.buckets {
		out[hour] = sortedRecords(bucket)
	}
	return out
}

// Hours returns the hours that have at least one record, ascending.
func (l *Log) Hours() []int {
	l.mu.RLock()
	hours := make([]int, 0, len(l.buckets))
	for hour := range l.buckets {
		hours = append(hours, hour)
	}
	l.mu.RUnlock()

	slices.Sort(hours)
	return hours
}

// Len returns the total number of records across all buckets.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, bucket := range l.buckets {
		n += len(bucket)
	}
	return n
}

func sortedRecords(bucket map[Record]struct{}) []Record {
	if len(bucket) == 0 {
		return nil
	}
	out := make([]Record, 0, len(bucket))
	for rec := range bucket {
		out = append(out, rec)
	}
	slices.SortFunc(out, compareRecords)
	return out
}

func compareRecords(a, b Record) int {
	return cmp.Or(
		cmp.Compare(a.Recipient, b.Recipient),
		cmp.Compare(a.Subject, b.Subject),
		cmp.Compare(a.Body, b.Body),
	)
}
