package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"social-chat/internal/api"
	"social-chat/internal/message"
	"social-chat/internal/ui"
)

const (
	uploadRemoveDelay   = 3 * time.Second
	uploadPollInterval  = time.Second
	defaultPollAttempts = 60
)

// Step identifiers for an upload session.
const (
	stepPrepare  = "prepare"
	stepTransfer = "transfer"
)

// ErrUploadInProgress rejects a second picker-initiated share while one is
// still running.
var ErrUploadInProgress = errors.New("upload already in progress")

// uploadTransport is the REST surface the coordinator needs.
type uploadTransport interface {
	ShareFile(ctx context.Context, filename string, src io.Reader) (api.ShareResult, error)
	CheckUploadStatus(ctx context.Context, taskID string) (api.UploadStatus, error)
}

// UploadSession is the source of truth for one file-share operation; every
// sink update is a projection re-rendered from it.
type UploadSession struct {
	ID        string
	PeerID    int64
	Recipient string
	Progress  int
	Message   string
	Steps     []ui.UploadStep
	Failed    bool
	Done      bool
}

func (s *UploadSession) view() ui.UploadView {
	steps := make([]ui.UploadStep, len(s.Steps))
	copy(steps, s.Steps)
	return ui.UploadView{
		ID:        s.ID,
		Message:   s.Message,
		Progress:  s.Progress,
		Steps:     steps,
		Recipient: s.Recipient,
		Failed:    s.Failed,
	}
}

// UploadCoordinator drives file-share flows and keeps a floating status
// notification per session. Sessions are keyed by id so several can
// coexist.
type UploadCoordinator struct {
	ctx  context.Context
	api  uploadTransport
	sink ui.Sink
	send func(peerID int64, text string)

	pollAttempts int

	mu       sync.Mutex
	sessions map[string]*UploadSession
	busy     bool
	busyID   string
}

// NewUploadCoordinator wires the coordinator. send is invoked with the
// file-share marker message once an upload completes.
func NewUploadCoordinator(ctx context.Context, rest uploadTransport, sink ui.Sink, send func(peerID int64, text string)) *UploadCoordinator {
	return &UploadCoordinator{
		ctx:          ctx,
		api:          rest,
		sink:         sink,
		send:         send,
		pollAttempts: defaultPollAttempts,
		sessions:     make(map[string]*UploadSession),
	}
}

// Share uploads one file for the given peer and, on success, sends the chat
// message embedding the returned file link. The busy guard rejects a second
// share while one is in flight; it releases when this share terminates.
func (c *UploadCoordinator) Share(peerID int64, recipient, filename string, src io.Reader) error {
	if filename == "" || src == nil {
		return nil
	}
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrUploadInProgress
	}
	session := c.newSessionLocked(peerID, recipient)
	c.busy = true
	c.busyID = session.ID
	c.mu.Unlock()

	c.project(session)

	result, err := c.api.ShareFile(c.ctx, filename, src)
	if err != nil {
		log.Printf("share file %s: %v", filename, err)
		c.fail(session.ID, "Upload failed")
		return err
	}
	c.complete(session.ID, result.FileLink)
	return nil
}

// ShareDeferred starts a background upload tracked by task id and polls its
// status until a terminal state, a bounded number of attempts, or teardown.
func (c *UploadCoordinator) ShareDeferred(peerID int64, recipient, taskID string) {
	c.mu.Lock()
	session := c.newSessionLocked(peerID, recipient)
	c.mu.Unlock()
	c.project(session)
	go c.poll(taskID, session.ID)
}

func (c *UploadCoordinator) poll(taskID, sessionID string) {
	ticker := time.NewTicker(uploadPollInterval)
	defer ticker.Stop()
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
		status, err := c.api.CheckUploadStatus(c.ctx, taskID)
		if err != nil {
			log.Printf("upload status %s: %v", taskID, err)
			c.fail(sessionID, "Failed to check upload status")
			return
		}
		switch {
		case status.Status == "completed" && status.FileLink != "":
			c.complete(sessionID, status.FileLink)
			return
		case status.Status == "error":
			msg := status.Error
			if msg == "" {
				msg = "Upload failed"
			}
			c.fail(sessionID, msg)
			return
		}
	}
	c.fail(sessionID, "Upload status check timed out")
}

// RemoteComplete handles an upload_complete event for a server-side task.
// An unknown id still gets a terminal notification so the user sees the
// outcome.
func (c *UploadCoordinator) RemoteComplete(uploadID, fileLink string) {
	c.mu.Lock()
	if _, ok := c.sessions[uploadID]; !ok {
		c.sessions[uploadID] = c.blankSession(uploadID)
	}
	c.mu.Unlock()
	c.complete(uploadID, fileLink)
}

// RemoteError handles an upload_error event.
func (c *UploadCoordinator) RemoteError(uploadID, errMsg string) {
	c.mu.Lock()
	if _, ok := c.sessions[uploadID]; !ok {
		c.sessions[uploadID] = c.blankSession(uploadID)
	}
	c.mu.Unlock()
	if errMsg == "" {
		errMsg = "Upload failed"
	}
	c.fail(uploadID, errMsg)
}

func (c *UploadCoordinator) newSessionLocked(peerID int64, recipient string) *UploadSession {
	session := &UploadSession{
		ID:        "upload_" + uuid.NewString(),
		PeerID:    peerID,
		Recipient: recipient,
		Message:   "Starting upload...",
		Steps: []ui.UploadStep{
			{ID: stepPrepare, Label: "Preparing file...", Status: "current"},
			{ID: stepTransfer, Label: "Upload pending", Status: "pending"},
		},
	}
	c.sessions[session.ID] = session
	return session
}

func (c *UploadCoordinator) blankSession(id string) *UploadSession {
	return &UploadSession{
		ID:      id,
		Message: "Upload",
		Steps: []ui.UploadStep{
			{ID: stepPrepare, Label: "Preparing file...", Status: "current"},
			{ID: stepTransfer, Label: "Upload pending", Status: "pending"},
		},
	}
}

func (c *UploadCoordinator) complete(sessionID, fileLink string) {
	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if !ok || session.Done {
		c.mu.Unlock()
		return
	}
	session.Done = true
	session.Progress = 100
	session.Message = "Upload complete!"
	session.Steps = []ui.UploadStep{
		{ID: stepPrepare, Label: "File prepared", Status: "complete"},
		{ID: stepTransfer, Label: "Upload complete", Status: "complete"},
	}
	peerID := session.PeerID
	c.releaseBusyLocked(sessionID)
	c.mu.Unlock()

	c.project(session)
	if peerID != 0 && fileLink != "" {
		c.send(peerID, message.FileMarker(fileLink))
	}
	c.scheduleRemoval(sessionID)
}

func (c *UploadCoordinator) fail(sessionID, errMsg string) {
	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if !ok || session.Done {
		c.mu.Unlock()
		return
	}
	session.Done = true
	session.Failed = true
	session.Message = errMsg
	session.Steps = []ui.UploadStep{
		{ID: stepPrepare, Label: "Preparation failed", Status: "error"},
		{ID: stepTransfer, Label: "Upload failed", Status: "error"},
	}
	c.releaseBusyLocked(sessionID)
	c.mu.Unlock()

	c.project(session)
	c.scheduleRemoval(sessionID)
}

// releaseBusyLocked frees the picker-share guard only when the session
// holding it terminates. Unrelated terminal events (server-side task
// completions, deferred polls) must not admit a second share while the
// guarded upload is still in flight.
func (c *UploadCoordinator) releaseBusyLocked(sessionID string) {
	if c.busy && c.busyID == sessionID {
		c.busy = false
		c.busyID = ""
	}
}

func (c *UploadCoordinator) project(session *UploadSession) {
	c.mu.Lock()
	view := session.view()
	c.mu.Unlock()
	c.sink.ShowUpload(view)
}

func (c *UploadCoordinator) scheduleRemoval(sessionID string) {
	time.AfterFunc(uploadRemoveDelay, func() {
		c.mu.Lock()
		delete(c.sessions, sessionID)
		c.mu.Unlock()
		c.sink.RemoveUpload(sessionID)
	})
}

// Busy reports whether a picker-initiated share is in flight.
func (c *UploadCoordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Pending returns the number of live sessions, for teardown diagnostics.
func (c *UploadCoordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// SessionSnapshot returns a copy of one session for inspection.
func (c *UploadCoordinator) SessionSnapshot(id string) (UploadSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[id]
	if !ok {
		return UploadSession{}, false
	}
	snap := *session
	snap.Steps = append([]ui.UploadStep(nil), session.Steps...)
	return snap, true
}
