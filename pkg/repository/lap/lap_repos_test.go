//nolint:funlen // ok for this test code
package lap

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"gotest.tools/v3/assert"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/testsupport/testdb"
)

func sampleResult(track string, lap int) *model.LapResult {
	return &model.LapResult{
		EnrichedTelemetry: model.EnrichedRecord{
			Lap: lap, TireDegradationRate: 0.3, PaceTrend: model.PaceStable,
			TireCliffRisk: 0.1, OptimalPitWindow: model.PitWindow{Start: 20, End: 24},
			PerformanceDelta: -0.2,
		},
		Indicators: &model.Indicators{Lap: lap, AeroEfficiency: 0.8, WeatherImpact: model.WeatherLow},
		RaceContext: model.RaceContext{
			RaceInfo: model.RaceInfo{TrackName: track, TotalLaps: 50, CurrentLap: lap},
			DriverState: model.DriverState{
				DriverName: "driver", CurrentPosition: 2,
				CurrentTireCompound: model.CompoundMedium, TireAgeLaps: lap,
			},
			Competitors: []model.Competitor{},
		},
	}
}

func TestCreate(t *testing.T) {
	pool := testdb.InitTestDB()
	noIndicators := sampleResult("Monza", 2)
	noIndicators.Indicators = nil

	tests := []struct {
		name string
		res  *model.LapResult
	}{
		{name: "full entry", res: sampleResult("Monza", 1)},
		{name: "without indicators", res: noIndicators},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id int64
			err := pgx.BeginFunc(context.Background(), pool, func(tx pgx.Tx) error {
				var err error
				id, err = Create(context.Background(), tx, tt.res)
				return err
			})
			assert.NilError(t, err)
			assert.Assert(t, id > 0)

			got, err := LoadLatest(context.Background(), pool, "Monza", 1)
			assert.NilError(t, err)
			assert.Equal(t, len(got), 1)
			assert.Equal(t, got[0].ID, id)
			assert.DeepEqual(t, got[0].Result, *tt.res)
		})
	}
}

func TestLoadLatest(t *testing.T) {
	pool := testdb.InitTestDB()
	ctx := context.Background()
	for lap := 1; lap <= 3; lap++ {
		_, err := Create(ctx, pool, sampleResult("Monza", lap))
		assert.NilError(t, err)
	}
	_, err := Create(ctx, pool, sampleResult("Spa", 1))
	assert.NilError(t, err)

	got, err := LoadLatest(ctx, pool, "Monza", 2)
	assert.NilError(t, err)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].Result.EnrichedTelemetry.Lap, 3)
	assert.Equal(t, got[1].Result.EnrichedTelemetry.Lap, 2)
	if diff := cmp.Diff(*sampleResult("Monza", 3), got[0].Result); diff != "" {
		t.Errorf("LoadLatest() mismatch (-want +got):\n%s", diff)
	}

	got, err = LoadLatest(ctx, pool, "Imola", 10)
	assert.NilError(t, err)
	assert.Equal(t, len(got), 0)

	num, err := DeleteByTrack(ctx, pool, "Monza")
	assert.NilError(t, err)
	assert.Equal(t, num, 3)
}
