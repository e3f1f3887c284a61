package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"social-chat/internal/api"
)

type sentRecorder struct {
	mu   sync.Mutex
	msgs []struct {
		peerID int64
		text   string
	}
}

func (r *sentRecorder) send(peerID int64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, struct {
		peerID int64
		text   string
	}{peerID, text})
}

func (r *sentRecorder) all() []struct {
	peerID int64
	text   string
} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]struct {
		peerID int64
		text   string
	}, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func newTestCoordinator(uploader uploadTransport) (*UploadCoordinator, *recordingSink, *sentRecorder) {
	sink := newRecordingSink()
	rec := &sentRecorder{}
	coord := NewUploadCoordinator(context.Background(), uploader, sink, rec.send)
	return coord, sink, rec
}

func TestShareSuccess(t *testing.T) {
	uploader := &fakeUploader{shareRes: api.ShareResult{Success: true, FileLink: "/api/download_file/abc123/report.pdf"}}
	coord, sink, rec := newTestCoordinator(uploader)

	err := coord.Share(7, "Alice", "report.pdf", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Share: %v", err)
	}

	views := sink.Uploads()
	if len(views) < 2 {
		t.Fatalf("expected initial and terminal projections, got %d", len(views))
	}
	first := views[0]
	if first.Progress != 0 || len(first.Steps) != 2 {
		t.Errorf("initial view = %+v", first)
	}
	if first.Steps[0].Status != "current" || first.Steps[1].Status != "pending" {
		t.Errorf("initial steps = %+v", first.Steps)
	}
	last := views[len(views)-1]
	if last.Progress != 100 || last.Failed {
		t.Errorf("terminal view = %+v", last)
	}
	for _, step := range last.Steps {
		if step.Status != "complete" {
			t.Errorf("step %s status = %q, want complete", step.ID, step.Status)
		}
	}

	sent := rec.all()
	if len(sent) != 1 {
		t.Fatalf("expected 1 chat message, got %d", len(sent))
	}
	if sent[0].peerID != 7 {
		t.Errorf("message peer = %d, want 7", sent[0].peerID)
	}
	want := "Shared file: [Download](/api/download_file/abc123/report.pdf)"
	if sent[0].text != want {
		t.Errorf("message text = %q, want %q", sent[0].text, want)
	}
	if coord.Busy() {
		t.Error("busy guard should release after completion")
	}
}

func TestShareFailure(t *testing.T) {
	uploader := &fakeUploader{shareErr: errors.New("disk full")}
	coord, sink, rec := newTestCoordinator(uploader)

	if err := coord.Share(7, "Alice", "report.pdf", strings.NewReader("x")); err == nil {
		t.Fatal("expected error")
	}

	views := sink.Uploads()
	last := views[len(views)-1]
	if !last.Failed || last.Message != "Upload failed" {
		t.Errorf("terminal view = %+v", last)
	}
	for _, step := range last.Steps {
		if step.Status != "error" {
			t.Errorf("step %s status = %q, want error", step.ID, step.Status)
		}
	}
	if len(rec.all()) != 0 {
		t.Error("no chat message on failure")
	}
	if coord.Busy() {
		t.Error("busy guard should release after failure")
	}
}

func TestShareNoopOnEmptyInput(t *testing.T) {
	coord, sink, _ := newTestCoordinator(&fakeUploader{})

	if err := coord.Share(7, "Alice", "", nil); err != nil {
		t.Fatalf("Share: %v", err)
	}
	if len(sink.Uploads()) != 0 {
		t.Error("no session for empty input")
	}
}

// gatedUploader holds ShareFile open until the gate closes.
type gatedUploader struct {
	gate chan struct{}
}

func (g *gatedUploader) ShareFile(context.Context, string, io.Reader) (api.ShareResult, error) {
	<-g.gate
	return api.ShareResult{Success: true}, nil
}

func (g *gatedUploader) CheckUploadStatus(context.Context, string) (api.UploadStatus, error) {
	return api.UploadStatus{}, nil
}

func TestShareBusyGuard(t *testing.T) {
	gate := make(chan struct{})
	uploader := &gatedUploader{gate: gate}
	coord, _, _ := newTestCoordinator(uploader)

	done := make(chan error, 1)
	go func() {
		done <- coord.Share(7, "Alice", "a.txt", strings.NewReader("x"))
	}()

	// Wait until the first share holds the guard.
	deadline := time.After(2 * time.Second)
	for !coord.Busy() {
		select {
		case <-deadline:
			t.Fatal("first share never took the busy guard")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := coord.Share(7, "Alice", "b.txt", strings.NewReader("y")); err != ErrUploadInProgress {
		t.Errorf("second share err = %v, want ErrUploadInProgress", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first share: %v", err)
	}
	if coord.Busy() {
		t.Error("guard should release once the first share finishes")
	}
}

func TestShareBusyGuardSurvivesUnrelatedCompletions(t *testing.T) {
	gate := make(chan struct{})
	uploader := &gatedUploader{gate: gate}
	coord, _, _ := newTestCoordinator(uploader)

	done := make(chan error, 1)
	go func() {
		done <- coord.Share(7, "Alice", "a.txt", strings.NewReader("x"))
	}()

	deadline := time.After(2 * time.Second)
	for !coord.Busy() {
		select {
		case <-deadline:
			t.Fatal("first share never took the busy guard")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Terminal events for server-side tasks belong to other sessions and
	// must leave the guard held.
	coord.RemoteComplete("upload_123_9", "/api/download_file/x/y.txt")
	coord.RemoteError("upload_456_9", "disk full")
	if !coord.Busy() {
		t.Fatal("unrelated completion released the guard while the share is in flight")
	}
	if err := coord.Share(7, "Alice", "b.txt", strings.NewReader("y")); err != ErrUploadInProgress {
		t.Errorf("second share err = %v, want ErrUploadInProgress", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first share: %v", err)
	}
	if coord.Busy() {
		t.Error("guard should release once the guarded share finishes")
	}
}

func TestRemoteCompleteUnknownID(t *testing.T) {
	coord, sink, rec := newTestCoordinator(&fakeUploader{})

	coord.RemoteComplete("upload_srv90", "/api/download_file/x/y.txt")

	views := sink.Uploads()
	if len(views) == 0 {
		t.Fatal("unknown id should still surface a terminal notification")
	}
	last := views[len(views)-1]
	if last.Progress != 100 || last.Failed {
		t.Errorf("terminal view = %+v", last)
	}
	// Remote sessions carry no peer, so no chat message goes out.
	if len(rec.all()) != 0 {
		t.Error("no chat message for a server-initiated completion")
	}
}

func TestRemoteError(t *testing.T) {
	coord, sink, _ := newTestCoordinator(&fakeUploader{})

	coord.RemoteError("upload_x", "quota exceeded")

	views := sink.Uploads()
	last := views[len(views)-1]
	if !last.Failed || last.Message != "quota exceeded" {
		t.Errorf("terminal view = %+v", last)
	}
}

func TestRemoteErrorDefaultsMessage(t *testing.T) {
	coord, sink, _ := newTestCoordinator(&fakeUploader{})

	coord.RemoteError("upload_x", "")

	views := sink.Uploads()
	if got := views[len(views)-1].Message; got != "Upload failed" {
		t.Errorf("message = %q, want Upload failed", got)
	}
}

func TestDeferredPollCompletes(t *testing.T) {
	uploader := &fakeUploader{statuses: []api.UploadStatus{
		{Status: "processing"},
		{Status: "completed", FileLink: "/api/download_file/t1/data.csv"},
	}}
	coord, sink, rec := newTestCoordinator(uploader)

	coord.ShareDeferred(7, "Alice", "task-1")

	deadline := time.After(5 * time.Second)
	for len(rec.all()) == 0 {
		select {
		case <-deadline:
			t.Fatal("poll never completed")
		case <-time.After(50 * time.Millisecond):
		}
	}
	views := sink.Uploads()
	last := views[len(views)-1]
	if last.Progress != 100 {
		t.Errorf("terminal view = %+v", last)
	}
	if got := rec.all()[0].text; !strings.Contains(got, "/api/download_file/t1/data.csv") {
		t.Errorf("chat message = %q", got)
	}
}

func TestDeferredPollBounded(t *testing.T) {
	uploader := &fakeUploader{} // always "processing"
	coord, sink, _ := newTestCoordinator(uploader)
	coord.pollAttempts = 2

	coord.ShareDeferred(7, "Alice", "task-stuck")

	deadline := time.After(5 * time.Second)
	for {
		views := sink.Uploads()
		if len(views) > 0 && views[len(views)-1].Failed {
			if got := views[len(views)-1].Message; got != "Upload status check timed out" {
				t.Errorf("message = %q", got)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("bounded poll never gave up")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestDeferredPollStopsOnTeardown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := newRecordingSink()
	uploader := &fakeUploader{}
	coord := NewUploadCoordinator(ctx, uploader, sink, func(int64, string) {})

	coord.ShareDeferred(7, "Alice", "task-torn")
	cancel()

	// Give the poller a couple of intervals to notice cancellation.
	time.Sleep(100 * time.Millisecond)
	views := sink.Uploads()
	for _, v := range views {
		if v.Failed {
			t.Errorf("teardown must not mark the session failed: %+v", v)
		}
	}
}

func TestUploadRemovedAfterDelay(t *testing.T) {
	uploader := &fakeUploader{shareRes: api.ShareResult{Success: true, FileLink: "/api/download_file/a/b.txt"}}
	coord, sink, _ := newTestCoordinator(uploader)

	if err := coord.Share(7, "Alice", "b.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("Share: %v", err)
	}
	if coord.Pending() != 1 {
		t.Fatalf("session should survive until the removal delay, pending = %d", coord.Pending())
	}

	deadline := time.After(uploadRemoveDelay + 2*time.Second)
	for len(sink.Removed()) == 0 {
		select {
		case <-deadline:
			t.Fatal("notification never removed")
		case <-time.After(100 * time.Millisecond):
		}
	}
	if coord.Pending() != 0 {
		t.Errorf("pending = %d after removal, want 0", coord.Pending())
	}
}
