package flywheel

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

type fakeStore struct {
	outcomes      []model.OutcomeRecord
	pairs         [][2]string
	upserted      []storage.FlywheelPrior
	failUpsertFor string
}

func (f *fakeStore) OutcomesSince(ctx context.Context, tenantID, entityType string, since time.Time) ([]model.OutcomeRecord, error) {
	return f.outcomes, nil
}

func (f *fakeStore) UpsertFlywheelPrior(ctx context.Context, p storage.FlywheelPrior) error {
	if p.EntityType == f.failUpsertFor {
		return assert.AnError
	}
	f.upserted = append(f.upserted, p)
	return nil
}

func (f *fakeStore) DistinctTenantEntityPairsWithRecentOutcomes(ctx context.Context, since time.Time, minOutcomes int) ([][2]string, error) {
	return f.pairs, nil
}

func TestComputeUpdatedPrior_BelowMinimumReturnsDefaultsUnchanged(t *testing.T) {
	store := &fakeStore{outcomes: []model.OutcomeRecord{{}, {}, {}}}
	e := New(store, zerolog.Nop())

	p, err := e.ComputeUpdatedPrior(context.Background(), "tenant-1", "order", 2.0, 5.0, 90)
	require.NoError(t, err)

	assert.Equal(t, 3, p.NOutcomes)
	assert.Equal(t, 2.0, p.UpdatedAlpha)
	assert.Equal(t, 5.0, p.UpdatedBeta)
	assert.False(t, p.NeedsRecalibration)
}

func TestComputeUpdatedPrior_ShiftsTowardObservedRate(t *testing.T) {
	outcomes := make([]model.OutcomeRecord, 0, 10)
	for i := 0; i < 10; i++ {
		outcomes = append(outcomes, model.OutcomeRecord{
			RiskMaterialized:   true,
			PredictedRiskScore: 20,
			PredictionError:    0.3,
		})
	}
	store := &fakeStore{outcomes: outcomes}
	e := New(store, zerolog.Nop())

	p, err := e.ComputeUpdatedPrior(context.Background(), "tenant-1", "order", 2.0, 5.0, 90)
	require.NoError(t, err)

	assert.Equal(t, 10, p.NOutcomes)
	assert.Equal(t, 10, p.NMaterialized)
	assert.Greater(t, p.UpdatedAlpha, 2.0) // observed rate (1.0) > prior rate (2/7) shifts alpha up
	assert.Less(t, p.UpdatedBeta, 5.0)
	assert.True(t, p.NeedsRecalibration) // predicted rate 0.2 vs observed rate 1.0 drifts well past 0.15
}

func TestComputeUpdatedPrior_ShiftClampedToMax(t *testing.T) {
	outcomes := make([]model.OutcomeRecord, 0, 200)
	for i := 0; i < 200; i++ {
		outcomes = append(outcomes, model.OutcomeRecord{RiskMaterialized: true, PredictedRiskScore: 0})
	}
	store := &fakeStore{outcomes: outcomes}
	e := New(store, zerolog.Nop())

	p, err := e.ComputeUpdatedPrior(context.Background(), "tenant-1", "order", 2.0, 5.0, 90)
	require.NoError(t, err)

	assert.Equal(t, 2.0+maxPriorShift, p.UpdatedAlpha)
}

func TestRunCycle_SkipsPersistFailuresAndContinues(t *testing.T) {
	outcomes := make([]model.OutcomeRecord, 0, 5)
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, model.OutcomeRecord{RiskMaterialized: false, PredictedRiskScore: 10})
	}
	store := &fakeStore{
		outcomes:      outcomes,
		pairs:         [][2]string{{"tenant-1", "order"}, {"tenant-1", "carrier"}, {"tenant-1", "route"}},
		failUpsertFor: "carrier",
	}
	e := New(store, zerolog.Nop())

	results, err := e.RunCycle(context.Background(), 90)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Len(t, store.upserted, 2)
}
