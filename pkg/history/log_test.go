package history_test

import (
	"testing"

	"github.com/aretw0/tendril/internal/testutils"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSession_SequenceNumbers(t *testing.T) {
	session := testutils.ReActSession(t, 3)
	log := history.FromSession(session)

	require.Len(t, log, 12)
	for i, e := range log {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, i/4, e.Turn)
		assert.Equal(t, i%4, e.Index)
	}
	require.NoError(t, log.Validate())
	assert.Equal(t, session, log.Session())
}

func TestLog_Append(t *testing.T) {
	var log history.Log
	log = log.Append(domain.NewStep(domain.StateStart, "a", domain.EventInvokeModel, "{}"), true)
	log = log.Append(domain.NewStep(domain.StateStart, "b", domain.EventFinish, "done"), false)
	log = log.Append(domain.NewStep(domain.StateStart, "c", domain.EventInvokeModel, "{}"), true)

	assert.Equal(t, []uint64{1, 2, 3}, []uint64{log[0].Seq, log[1].Seq, log[2].Seq})
	assert.Equal(t, []int{0, 0, 1}, []int{log[0].Turn, log[1].Turn, log[2].Turn})

	session := log.Session()
	require.Len(t, session, 2)
	assert.Len(t, session[0].IntermediarySteps, 2)
	assert.Len(t, session[1].IntermediarySteps, 1)
}

func TestLog_ValidateRejectsReordering(t *testing.T) {
	log := history.FromSession(testutils.ReActSession(t, 1))
	log[1], log[2] = log[2], log[1]

	assert.ErrorIs(t, log.Validate(), domain.ErrReconstruction)
	_, err := log.Messages(nil)
	assert.ErrorIs(t, err, domain.ErrReconstruction)
}
