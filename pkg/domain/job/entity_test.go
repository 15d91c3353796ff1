package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/pkg/domain/shared"
)

func newPendingJob(t *testing.T) *Job {
	t.Helper()
	j, err := New(shared.NewID(), shared.NewID(), TriggerManual)
	require.NoError(t, err)
	return j
}

func TestNew(t *testing.T) {
	j := newPendingJob(t)
	assert.Equal(t, StatusPending, j.Status())
	assert.Equal(t, TriggerManual, j.TriggeredBy())
	assert.Nil(t, j.StartedAt())
	assert.Nil(t, j.CompletedAt())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(shared.ID{}, shared.NewID(), TriggerManual)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New(shared.NewID(), shared.ID{}, TriggerSchedule)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestStart(t *testing.T) {
	j := newPendingJob(t)

	require.NoError(t, j.Start())
	assert.Equal(t, StatusRunning, j.Status())
	require.NotNil(t, j.StartedAt())

	// running -> running is rejected
	err := j.Start()
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestComplete(t *testing.T) {
	j := newPendingJob(t)
	require.NoError(t, j.Start())

	require.NoError(t, j.Complete(100, 98, 2))
	assert.Equal(t, StatusCompleted, j.Status())
	assert.Equal(t, 100, j.RecordsFound())
	assert.Equal(t, 98, j.FindingsCount())
	assert.Equal(t, 2, j.UnresolvedCount())
	require.NotNil(t, j.CompletedAt())

	// terminal states reject any further transition
	assert.ErrorIs(t, j.Complete(1, 1, 0), shared.ErrConflict)
	assert.ErrorIs(t, j.Start(), shared.ErrConflict)
	assert.ErrorIs(t, j.Fail("too late"), shared.ErrConflict)
}

func TestComplete_RequiresRunning(t *testing.T) {
	j := newPendingJob(t)
	err := j.Complete(1, 1, 0)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, StatusPending, j.Status())
}

func TestFail_FromPending(t *testing.T) {
	j := newPendingJob(t)

	require.NoError(t, j.Fail("connector unreachable"))
	assert.Equal(t, StatusFailed, j.Status())
	assert.Equal(t, "connector unreachable", j.ErrorMessage())
	require.NotNil(t, j.CompletedAt())
}

func TestFail_FromRunning(t *testing.T) {
	j := newPendingJob(t)
	require.NoError(t, j.Start())

	require.NoError(t, j.Fail("fetch timeout"))
	assert.Equal(t, StatusFailed, j.Status())
}

func TestFail_TerminalRejected(t *testing.T) {
	j := newPendingJob(t)
	require.NoError(t, j.Fail("first failure"))

	err := j.Fail("second failure")
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "first failure", j.ErrorMessage())
}

func TestSetCounts(t *testing.T) {
	j := newPendingJob(t)
	require.NoError(t, j.Start())

	j.SetCounts(50, 48, 2)
	assert.Equal(t, 50, j.RecordsFound())
	assert.Equal(t, 48, j.FindingsCount())
	assert.Equal(t, 2, j.UnresolvedCount())
	// counts are recorded without a state change
	assert.Equal(t, StatusRunning, j.Status())
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}
