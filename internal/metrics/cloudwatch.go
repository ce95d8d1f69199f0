// Package metrics aggregates application counters and ships them to
// CloudWatch on an interval.
package metrics

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchAPI is the subset of the CloudWatch client used by Recorder.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Recorder sums counters in memory between flushes.
type Recorder struct {
	client    CloudWatchAPI
	namespace string

	mu     sync.Mutex
	counts map[string]float64
}

func NewRecorder(client CloudWatchAPI, namespace string) *Recorder {
	return &Recorder{
		client:    client,
		namespace: namespace,
		counts:    map[string]float64{},
	}
}

func (r *Recorder) Count(name string, value float64) {
	r.mu.Lock()
	r.counts[name] += value
	r.mu.Unlock()
}

// Flush sends and resets the current counters. Counters are put back when
// the call fails so they are retried on the next flush.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	pending := r.counts
	r.counts = map[string]float64{}
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now()
	data := make([]cwtypes.MetricDatum, 0, len(names))
	for _, name := range names {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(pending[name]),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  aws.Time(now),
		})
	}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		r.mu.Lock()
		for name, v := range pending {
			r.counts[name] += v
		}
		r.mu.Unlock()
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				log.Println("[METRICS] [ERROR]", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := r.Flush(final); err != nil {
				log.Println("[METRICS] [ERROR] final flush:", err)
			}
			cancel()
			return
		}
	}
}

// Nop discards counters. It is used when no namespace is configured.
type Nop struct{}

func (Nop) Count(string, float64) {}
