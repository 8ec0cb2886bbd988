package state

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"seaescrow/crypto"
	"seaescrow/native/escrow"
	"seaescrow/native/token"
	"seaescrow/storage"
)

func testAddress(fill byte) crypto.Address {
	return crypto.MustBytesToAddress(bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

func TestJournalIsolatedUntilCommit(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	require.NoError(t, mgr.KVPut([]byte("greeting"), "hello"))
	var got string
	ok, err := mgr.KVGet([]byte("greeting"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", got)

	other := NewManager(db)
	ok, err = other.KVGet([]byte("greeting"), &got)
	require.NoError(t, err)
	require.False(t, ok, "uncommitted write leaked to another journal")

	require.NoError(t, mgr.Commit())
	ok, err = NewManager(db).KVGet([]byte("greeting"), &got)
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, mgr.KVPut([]byte("late"), uint64(1)), ErrClosed)
}

func TestDiscardDropsWrites(t *testing.T) {
	db := storage.NewMemDB()
	seed := NewManager(db)
	require.NoError(t, seed.SetNonce(testAddress(0x01), 4))
	require.NoError(t, seed.Commit())

	mgr := NewManager(db)
	require.NoError(t, mgr.SetNonce(testAddress(0x01), 5))
	require.NoError(t, mgr.SetNonce(testAddress(0x02), 1))
	require.Equal(t, 2, mgr.Dirty())
	mgr.Discard()

	nonce, err := NewManager(db).Nonce(testAddress(0x01))
	require.NoError(t, err)
	require.Equal(t, uint64(4), nonce)
	nonce, err = NewManager(db).Nonce(testAddress(0x02))
	require.NoError(t, err)
	require.Zero(t, nonce)
}

func TestFinalisedJournalRejectsUse(t *testing.T) {
	db := storage.NewMemDB()

	committed := NewManager(db)
	require.NoError(t, committed.KVPut([]byte("k"), uint64(9)))
	require.NoError(t, committed.Commit())
	require.ErrorIs(t, committed.Commit(), ErrClosed)
	_, err := committed.KVGet([]byte("k"), nil)
	require.ErrorIs(t, err, ErrClosed)

	discarded := NewManager(db)
	discarded.Discard()
	require.ErrorIs(t, discarded.SetNonce(testAddress(0x03), 1), ErrClosed)
	require.ErrorIs(t, discarded.Commit(), ErrClosed)

	var got uint64
	ok, err := NewManager(db).KVGet([]byte("k"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(9), got)
}

func TestOrderPersistenceAndSellerIndex(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	defer db.Close()

	order := &escrow.Order{
		Address:             testAddress(0x10),
		Schema:              escrow.SchemaArbitrated,
		Seller:              testAddress(0x11),
		OrderID:             3,
		CustodyBump:         255,
		SellerPayoutAccount: testAddress(0x12),
		Referee:             testAddress(0x13),
		AssetType:           testAddress(0x16),
		Amount:              50,
		Vault:               testAddress(0x17),
		State:               escrow.OrderPending,
	}
	mgr := NewManager(db)
	require.NoError(t, mgr.OrderPut(order))
	order.State = escrow.OrderDeposited
	require.NoError(t, mgr.OrderPut(order))
	require.NoError(t, mgr.Commit())

	reader := NewManager(db)
	loaded, ok, err := reader.OrderGet(order.Address)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, order, loaded)

	orders, err := reader.SellerOrders(order.Seller)
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{order.Address}, orders)

	_, ok, err = reader.OrderGet(testAddress(0x99))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTokenRecords(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	mint := &token.Mint{Address: testAddress(0x20), Symbol: "USDC", Decimals: 6, MintAuthority: testAddress(0x21), Supply: 10}
	acct := &token.Account{Address: testAddress(0x22), Mint: mint.Address, Owner: testAddress(0x23), Amount: 10, Frozen: true}
	require.NoError(t, mgr.TokenMintPut(mint))
	require.NoError(t, mgr.TokenAccountPut(acct))

	gotMint, ok, err := mgr.TokenMintGet(mint.Address)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, mint, gotMint)

	gotAcct, ok, err := mgr.TokenAccountGet(acct.Address)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, acct, gotAcct)

	owned, err := mgr.OwnerAccounts(acct.Owner)
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{acct.Address}, owned)

	empty, err := mgr.OwnerAccounts(testAddress(0x30))
	require.NoError(t, err)
	require.Empty(t, empty)
}
