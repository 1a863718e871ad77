package command

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/testsupport/testdb"
)

func TestCreateAndLoad(t *testing.T) {
	pool := testdb.InitTestDB()
	ctx := context.Background()
	sessionID := uuid.NewString()
	top := &model.Strategy{
		ID: 1, Name: "one stop", StopCount: 1, PitLaps: []int{20},
		TireSequence: []model.Compound{model.CompoundMedium, model.CompoundHard},
		RiskLevel:    model.RiskLow,
	}

	_, err := Create(ctx, pool, &Entry{
		SessionID: sessionID, Lap: 4,
		Command: model.ControlCommand{BrakeBias: 6, DifferentialSlip: 5, Rationale: "moderate"},
	})
	require.NoError(t, err)
	_, err = Create(ctx, pool, &Entry{
		SessionID: sessionID, Lap: 3,
		Command:  model.ControlCommand{BrakeBias: 7, DifferentialSlip: 5, Rationale: "high"},
		Strategy: top,
	})
	require.NoError(t, err)

	got, err := LoadBySession(ctx, pool, sessionID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Lap)
	assert.Equal(t, top, got[0].Strategy)
	assert.Equal(t, 7, got[0].Command.BrakeBias)
	assert.Nil(t, got[1].Strategy)
	assert.Equal(t, "moderate", got[1].Command.Rationale)

	num, err := DeleteBySession(ctx, pool, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, num)
}
