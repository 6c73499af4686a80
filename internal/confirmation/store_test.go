package confirmation

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

func TestCreatePending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := New(mock)

	mock.ExpectExec("INSERT INTO trade_confirmations").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.CreatePending(context.Background(), "tnt_1", "conv_1", domain.TradeProposal{
		Side: domain.SideBuy, Asset: "BTC", AmountUSD: 10,
	}, domain.ModePaper, 0)

	require.NoError(t, err)
	assert.Contains(t, id, "conf_")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConfirmedFirstCallerWins(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := New(mock)

	mock.ExpectExec("UPDATE trade_confirmations").
		WithArgs(pgxmock.AnyArg(), "run_1", "conf_abc", "tnt_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := store.MarkConfirmed(context.Background(), "tnt_1", "conf_abc", "run_1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConfirmedSecondCallerLoses(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := New(mock)

	mock.ExpectExec("UPDATE trade_confirmations").
		WithArgs(pgxmock.AnyArg(), "run_1", "conf_abc", "tnt_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.MarkConfirmed(context.Background(), "tnt_1", "conf_abc", "run_1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := New(mock)

	mock.ExpectQuery("SELECT id, tenant_id").
		WithArgs("conf_missing", "tnt_1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "conversation_id", "proposal_json", "mode", "status",
			"created_at", "expires_at", "confirmed_at", "run_id", "insight_json",
		}))

	_, err = store.GetByID(context.Background(), "tnt_1", "conf_missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := New(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, tenant_id").
		WithArgs("conf_abc", "tnt_1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "conversation_id", "proposal_json", "mode", "status",
			"created_at", "expires_at", "confirmed_at", "run_id", "insight_json",
		}).AddRow(
			"conf_abc", "tnt_1", "conv_1", []byte(`{"side":"BUY","asset":"BTC","amount_usd":10}`),
			"PAPER", "PENDING", now, now.Add(5*time.Minute), (*time.Time)(nil), (*string)(nil), []byte(nil),
		))

	got, err := store.GetByID(context.Background(), "tnt_1", "conf_abc")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmationPending, got.Status)
	assert.Equal(t, "BTC", got.Proposal.Asset)
}

func TestIsExpiredObservedOnRead(t *testing.T) {
	c := domain.PendingConfirmation{
		Status:    domain.ConfirmationPending,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	assert.True(t, c.IsExpired(time.Now()))
}
