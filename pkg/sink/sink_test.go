package sink

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	wallet = common.HexToAddress("0x1111111111111111111111111111111111111111")
	txHash = common.HexToHash("0xabc")
)

func TestMemorySink(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySink()

	ok, err := m.TokenExists(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.UpsertToken(ctx, DeploymentRecord{Token: token, Creator: wallet, CreationIndex: "1"}))
	ok, _ = m.TokenExists(ctx, token)
	assert.True(t, ok)
	assert.Len(t, m.Tokens(), 1)

	rec := TradeRecord{Wallet: wallet, Token: token, TxHash: txHash, Side: SideBuy}
	require.NoError(t, m.AppendTransaction(ctx, rec))
	require.NoError(t, m.AppendTransaction(ctx, rec))
	assert.Len(t, m.Trades(), 1)

	ok, _ = m.TransactionExists(ctx, txHash, wallet)
	assert.True(t, ok)
	ok, _ = m.TransactionExists(ctx, txHash, token)
	assert.False(t, ok)

	require.NoError(t, m.UpsertUser(ctx, wallet))
	assert.True(t, m.HasUser(wallet))
	assert.NoError(t, m.Close())
}

func TestPostgresSink_Init(t *testing.T) {
	_, err := NewPostgresSink("postgres://localhost", "bad; DROP TABLE users;")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table prefix")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgresSinkWithDB(db, "lp_")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS lp_tokens")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, p.initTables())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Tokens(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgresSinkWithDB(db, "")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM tokens WHERE address = $1)")).
		WithArgs(token.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := p.TokenExists(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	rec := DeploymentRecord{Version: "V1", Token: token, Creator: wallet, CreationIndex: "7", TxHash: txHash, BlockNumber: 120}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tokens")).
		WithArgs(token.Hex(), "V1", wallet.Hex(), "7", txHash.Hex(), 120).
		WillReturnResult(sqlmock.NewResult(1, 1))
	assert.NoError(t, p.UpsertToken(ctx, rec))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Transactions(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgresSinkWithDB(db, "")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM transactions")).
		WithArgs(txHash.Hex(), wallet.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	ok, err := p.TransactionExists(ctx, txHash, wallet)
	require.NoError(t, err)
	assert.False(t, ok)

	ts := time.Unix(1700000000, 0).UTC()
	rec := TradeRecord{
		Version: "V2", Wallet: wallet, Token: token, Side: SideSell,
		ETHAmount: 1.5, TokenAmount: 1000, MarketCapUSD: 42000,
		TxHash: txHash, BlockNumber: 99, Timestamp: ts,
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WithArgs("V2", txHash.Hex(), wallet.Hex(), token.Hex(), SideSell, 1.5, 1000.0, 42000.0, 99, ts, false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	assert.NoError(t, p.AppendTransaction(ctx, rec))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(wallet.Hex()).
		WillReturnError(assert.AnError)
	assert.ErrorIs(t, p.UpsertUser(ctx, wallet), assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Close(t *testing.T) {
	db, mock, _ := sqlmock.New()
	p := NewPostgresSinkWithDB(db, "")
	mock.ExpectClose()
	assert.NoError(t, p.Close())
}
