package review

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleForReservationCreatesRequest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO review_requests").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewScheduler(NewStore(mock), nil)
	err = s.ScheduleForReservation(context.Background(), confirmedReservation(uuid.New()), reviewSettings())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleForReservationSkipsWithoutFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewScheduler(NewStore(mock), nil)
	settings := reviewSettings()
	settings.ReviewFlowID = ""

	err = s.ScheduleForReservation(context.Background(), confirmedReservation(uuid.New()), settings)
	require.NoError(t, err)
	// No insert expected.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleForReservationBadVisitTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := confirmedReservation(uuid.New())
	r.Date = "morgen"

	s := NewScheduler(NewStore(mock), nil)
	err = s.ScheduleForReservation(context.Background(), r, reviewSettings())
	assert.Error(t, err)
}
