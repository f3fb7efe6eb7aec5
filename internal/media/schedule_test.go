package media

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedulerRejectsInvalidSpec(t *testing.T) {
	ix, _ := newTestIndexer(t)
	_, err := NewScheduler(ix, nil, "every now and then", zerolog.Nop())
	assert.Error(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	ix, _ := newTestIndexer(t)
	s, err := NewScheduler(ix, []string{t.TempDir()}, "@every 1h", zerolog.Nop())
	require.NoError(t, err)

	s.Start()
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
	assert.False(t, ix.IsIndexing())
}
