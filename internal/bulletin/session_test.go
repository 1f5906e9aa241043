package bulletin_test

import (
	"context"
	"math/big"
	"testing"

	"UB-Client/internal/bulletin"
	"UB-Client/internal/bulletin/bulletintest"
	xerrors "UB-Client/internal/errors"
	"UB-Client/internal/wallet"

	"github.com/stretchr/testify/require"
)

const devKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func newSession(t *testing.T, chain *bulletintest.Chain) *bulletin.Session {
	t.Helper()
	account, err := wallet.Import(devKey)
	require.NoError(t, err)
	session, err := newReader(t, chain).Session(account)
	require.NoError(t, err)
	return session
}

func TestSessionRequiresAccount(t *testing.T) {
	r := newReader(t, bulletintest.New())
	_, err := r.Session(nil)
	require.ErrorIs(t, err, bulletin.ErrAccountRequired)
}

func TestSessionReadsAsAccount(t *testing.T) {
	chain := bulletintest.New()
	session := newSession(t, chain)
	chain.SetStatus(session.Address(), "subscriber")
	chain.SetSubscribed(session.Address(), true)
	idx := chain.AddPost(bulletintest.Post{Type: bulletin.PostSubscriptionOnly, Author: alice, Content: "secret"})

	status, err := session.UserStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "subscriber", status)

	post, err := session.PostAtIndex(context.Background(), idx)
	require.NoError(t, err)
	require.NotNil(t, post)
	require.Equal(t, "secret", post.Content)

	// The read-only view still gets the subscription denial.
	post, err = session.Reader.PostAtIndex(context.Background(), idx)
	require.NoError(t, err)
	require.Nil(t, post)
}

func TestSessionSubmitFeedback(t *testing.T) {
	chain := bulletintest.New()
	session := newSession(t, chain)

	tx, err := session.SubmitFeedback(context.Background(), "great board")
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, chain.UBAddress(), *tx.To())
	require.Equal(t, []string{"great board"}, chain.Feedback())

	receipt, err := session.WaitMined(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), receipt.TxHash)
}

func TestSessionSubscribePaysPriceTimesPeriods(t *testing.T) {
	chain := bulletintest.New()
	chain.SetPrice(big.NewInt(250))
	session := newSession(t, chain)

	tx, err := session.Subscribe(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, int64(1000), tx.Value().Int64())
	require.Equal(t, chain.ETCAddress(), *tx.To())

	ok, err := session.VerifySubscription(context.Background(), session.Address())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSessionSubscribeRejectsZeroPeriods(t *testing.T) {
	chain := bulletintest.New()
	session := newSession(t, chain)
	before := chain.TotalCalls()

	_, err := session.Subscribe(context.Background(), 0)
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	require.Equal(t, before, chain.TotalCalls())
}

func TestSessionSubscribeWithoutETC(t *testing.T) {
	chain := bulletintest.New()
	chain.HideETC()
	session := newSession(t, chain)

	_, err := session.Subscribe(context.Background(), 1)
	require.ErrorIs(t, err, bulletin.ErrNotConnected)
	require.Empty(t, chain.Sent())
}

func TestSessionTransactionRevert(t *testing.T) {
	chain := bulletintest.New()
	chain.Fail("submitFeedback", bulletintest.Revert("Feedback too long"))
	session := newSession(t, chain)

	_, err := session.SubmitFeedback(context.Background(), "x")
	require.Equal(t, bulletin.CodeContractReverted, xerrors.CodeOf(err))
	require.Empty(t, chain.Feedback())
}
