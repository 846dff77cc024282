package runs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contrib-backend/internal/queue"
)

type captureQueue struct {
	mu   sync.Mutex
	sent []queue.Message
}

func (q *captureQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, msg)
	return nil
}

func (q *captureQueue) messages() []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Message(nil), q.sent...)
}

func newTestService() (*Service, *MemoryRepo, *captureQueue) {
	repo := NewMemoryRepo()
	q := &captureQueue{}
	return &Service{Repo: repo, Queue: q}, repo, q
}

func TestStartEnqueuesRun(t *testing.T) {
	svc, repo, q := newTestService()

	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, run.Status)

	stored, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", stored.Org)

	msgs := q.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, run.ID, msgs[0].RunID)
	assert.Equal(t, ModeResume, msgs[0].Mode)
	assert.Equal(t, 1, msgs[0].Version)
}

func TestStartRefusesDuplicateActiveRun(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	assert.ErrorIs(t, err, ErrActiveRunExists)

	// A different year is a different key.
	_, err = svc.Start(context.Background(), "acme", "octocat", 2023, Options{})
	assert.NoError(t, err)
}

func TestStartValidatesInput(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Start(context.Background(), "", "octocat", 2024, Options{})
	assert.Error(t, err)
	_, err = svc.Start(context.Background(), "acme", "", 2024, Options{})
	assert.Error(t, err)
	_, err = svc.Start(context.Background(), "acme", "octocat", 1987, Options{})
	assert.Error(t, err)
}

func TestResumeModes(t *testing.T) {
	svc, repo, q := newTestService()
	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	require.NoError(t, err)
	require.NoError(t, repo.SetFailed(context.Background(), run.ID, StatusReviewing, "provider outage"))

	resumed, err := svc.Resume(context.Background(), run.ID, ModeFullRestart)
	require.NoError(t, err)
	assert.Empty(t, resumed.Error, "resume clears the stored error")

	msgs := q.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, ModeFullRestart, msgs[1].Mode)

	_, err = svc.Resume(context.Background(), run.ID, "sideways")
	assert.Error(t, err)

	_, err = svc.Resume(context.Background(), "missing", ModeResume)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResumeReopensParkedRun(t *testing.T) {
	svc, repo, _ := newTestService()
	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	require.NoError(t, err)

	_, err = svc.Pause(context.Background(), run.ID)
	require.NoError(t, err)
	resumed, err := svc.Resume(context.Background(), run.ID, ModeResume)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, resumed.Status, "paused run reopens at its recorded phase")

	require.NoError(t, repo.SetFailed(context.Background(), run.ID, StatusReviewing, "provider outage"))
	resumed, err = svc.Resume(context.Background(), run.ID, ModeResume)
	require.NoError(t, err)
	assert.Equal(t, StatusReviewing, resumed.Status, "failed run reopens at its recorded phase")
	assert.Empty(t, resumed.Error)

	require.NoError(t, repo.SetFailed(context.Background(), run.ID, StatusReviewing, "provider outage"))
	resumed, err = svc.Resume(context.Background(), run.ID, ModeFullRestart)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, resumed.Status, "full restart reopens from the top")
}

func TestResumeRefusedForCompletedRun(t *testing.T) {
	svc, repo, _ := newTestService()
	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(context.Background(), run.ID, StatusDone))

	_, err = svc.Resume(context.Background(), run.ID, ModeResume)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPauseAndCancel(t *testing.T) {
	svc, repo, _ := newTestService()
	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	require.NoError(t, err)

	paused, err := svc.Pause(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, paused.Status)

	canceled, err := svc.Cancel(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, canceled.Status)
	assert.Equal(t, "canceled by request", canceled.Error)

	_, err = svc.Pause(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Cancel(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, repo.SetStatus(context.Background(), run.ID, StatusDone))
	_, err = svc.Pause(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmOnlyWhileAwaiting(t *testing.T) {
	svc, repo, q := newTestService()
	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), run.ID, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, repo.SetStatus(context.Background(), run.ID, StatusAwaitingAI))
	confirmed, err := svc.Confirm(context.Background(), run.ID, false)
	require.NoError(t, err)
	assert.Equal(t, ConfirmationConfirmed, confirmed.AIConfirmation)

	msgs := q.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, ModeResume, msgs[1].Mode)
}

func TestConfirmSkipRecordsDecision(t *testing.T) {
	svc, repo, _ := newTestService()
	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(context.Background(), run.ID, StatusAwaitingAI))

	skipped, err := svc.Confirm(context.Background(), run.ID, true)
	require.NoError(t, err)
	assert.Equal(t, ConfirmationSkipped, skipped.AIConfirmation)
}

func TestProgressValidation(t *testing.T) {
	assert.NoError(t, Progress{Phase: StatusReviewing, Total: 10, Completed: 7, Failed: 3}.Validate())
	assert.Error(t, Progress{Phase: "WARP"}.Validate())
	assert.Error(t, Progress{Total: -1}.Validate())
	assert.Error(t, Progress{Total: 5, Completed: 4, Failed: 2}.Validate())

	payload, err := EncodeProgress(Progress{Phase: StatusScanningCommits, Total: 3, Completed: 1, Message: "scanning"})
	require.NoError(t, err)
	decoded, err := DecodeProgress(payload)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Total)

	_, err = DecodeProgress([]byte(`{"phase":"WARP"}`))
	assert.Error(t, err)
}
