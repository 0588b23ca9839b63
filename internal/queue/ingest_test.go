package queue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/minescope/backend/pkg/common"
)

type fakeJobTracker struct {
	transitions []string
	failedCause error
}

func (f *fakeJobTracker) MarkRunning(ctx context.Context, id string) error {
	f.transitions = append(f.transitions, "running")
	return nil
}

func (f *fakeJobTracker) MarkFinished(ctx context.Context, id string, summary common.IngestSummary) error {
	f.transitions = append(f.transitions, "finished")
	return nil
}

func (f *fakeJobTracker) MarkFailed(ctx context.Context, id string, cause error) error {
	f.transitions = append(f.transitions, "failed")
	f.failedCause = cause
	return nil
}

type fakePayloadStore struct {
	data   []byte
	getErr error
}

func (f *fakePayloadStore) Get(ctx context.Context, key string) ([]byte, error) {
	return f.data, f.getErr
}

func (f *fakePayloadStore) Delete(ctx context.Context, key string) error {
	return nil
}

const testIngestMsg = `{"job_id":"job1","filename":"study.pdf","mode":"incremental","payload_key":"documents/abc.json"}`

func TestProcessIngestMessageDropsMalformedMessage(t *testing.T) {
	jobs := &fakeJobTracker{}

	err := ProcessIngestMessage(context.Background(), nil, nil, jobs, nil, "{not json")
	if err != nil {
		t.Fatalf("malformed message must be dropped, not retried: %v", err)
	}
	if len(jobs.transitions) != 0 {
		t.Errorf("no job can be identified from a malformed message, got transitions %v", jobs.transitions)
	}
}

func TestProcessIngestMessageFailsJobOnMalformedPayloadWithoutRetry(t *testing.T) {
	jobs := &fakeJobTracker{}
	payloads := &fakePayloadStore{data: []byte("not json")}

	err := ProcessIngestMessage(context.Background(), payloads, nil, jobs, nil, testIngestMsg)
	if err != nil {
		t.Fatalf("invalid payload must fail the job once, not requeue: %v", err)
	}
	want := []string{"running", "failed"}
	if len(jobs.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", jobs.transitions, want)
	}
	for i, tr := range want {
		if jobs.transitions[i] != tr {
			t.Fatalf("transitions = %v, want %v", jobs.transitions, want)
		}
	}
	if jobs.failedCause == nil || !strings.Contains(jobs.failedCause.Error(), "malformed payload") {
		t.Errorf("job must record the input failure, got %v", jobs.failedCause)
	}
}

func TestProcessIngestMessageRetriesPayloadFetchError(t *testing.T) {
	jobs := &fakeJobTracker{}
	payloads := &fakePayloadStore{getErr: errors.New("connection refused")}

	err := ProcessIngestMessage(context.Background(), payloads, nil, jobs, nil, testIngestMsg)
	if err == nil {
		t.Fatal("transient fetch error must be surfaced for retry")
	}
	if jobs.failedCause == nil {
		t.Error("job must record the failure cause")
	}
}
