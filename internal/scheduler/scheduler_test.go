package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string {
	return "counting"
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Jobs())
}

func TestAddJob_Registers(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 * * * *", &countingJob{}))
	require.NoError(t, s.AddJob("@hourly", &countingJob{}))
	assert.Equal(t, 2, s.Jobs())
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())

	ok := &countingJob{}
	require.NoError(t, s.RunNow(ok))
	assert.Equal(t, int32(1), ok.runs.Load())

	failing := &countingJob{err: errors.New("boom")}
	assert.EqualError(t, s.RunNow(failing), "boom")
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("failures are logged, not fatal")}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

type panickingJob struct {
	runs atomic.Int32
}

func (j *panickingJob) Run() error {
	j.runs.Add(1)
	panic("snapshot store exploded")
}

func (j *panickingJob) Name() string {
	return "panicking"
}

func TestScheduledJobPanicIsRecovered(t *testing.T) {
	s := New(zerolog.Nop())
	job := &panickingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 2
	}, 4*time.Second, 50*time.Millisecond)
}
