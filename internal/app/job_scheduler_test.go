package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/logger"
)

func schedulerConnector(t *testing.T, cronExpr string) *connector.Connector {
	t.Helper()
	conn, err := connector.New(shared.NewID(), connector.TypeADCSFile, "cert export", map[string]any{}, cronExpr)
	require.NoError(t, err)
	return conn
}

func TestSchedulerDue(t *testing.T) {
	s := NewJobScheduler(nil, nil, JobSchedulerConfig{}, logger.NewDefault())

	tests := []struct {
		name  string
		cron  string
		since time.Time
		now   time.Time
		want  bool
	}{
		{
			name:  "fires inside the window",
			cron:  "*/15 * * * *",
			since: time.Date(2026, 6, 1, 10, 10, 0, 0, time.UTC),
			now:   time.Date(2026, 6, 1, 10, 16, 0, 0, time.UTC),
			want:  true,
		},
		{
			name:  "fires exactly at now",
			cron:  "30 10 * * *",
			since: time.Date(2026, 6, 1, 10, 29, 0, 0, time.UTC),
			now:   time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC),
			want:  true,
		},
		{
			name:  "next firing is past the window",
			cron:  "0 2 * * *",
			since: time.Date(2026, 6, 1, 10, 10, 0, 0, time.UTC),
			now:   time.Date(2026, 6, 1, 10, 11, 0, 0, time.UTC),
			want:  false,
		},
		{
			name:  "daily schedule over a day boundary",
			cron:  "0 2 * * *",
			since: time.Date(2026, 6, 1, 1, 59, 0, 0, time.UTC),
			now:   time.Date(2026, 6, 1, 2, 1, 0, 0, time.UTC),
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := schedulerConnector(t, tt.cron)
			assert.Equal(t, tt.want, s.due(conn, tt.since, tt.now))
		})
	}
}

func TestSchedulerDue_InvalidCron(t *testing.T) {
	s := NewJobScheduler(nil, nil, JobSchedulerConfig{}, logger.NewDefault())

	// invalid expressions slip past creation only via direct persistence;
	// the scheduler must not trigger on them
	conn := connector.Reconstitute(
		shared.NewID(), shared.NewID(),
		connector.TypeADCSFile, "bad cron",
		map[string]any{}, "not a cron", true,
		nil, connector.RunStatusNever,
		time.Now(), time.Now(),
	)
	assert.False(t, s.due(conn, time.Now().Add(-time.Minute), time.Now()))
}

func TestNewJobScheduler_DefaultInterval(t *testing.T) {
	s := NewJobScheduler(nil, nil, JobSchedulerConfig{}, logger.NewDefault())
	assert.Equal(t, time.Minute, s.interval)

	s = NewJobScheduler(nil, nil, JobSchedulerConfig{CheckInterval: 10 * time.Second}, logger.NewDefault())
	assert.Equal(t, 10*time.Second, s.interval)
}
