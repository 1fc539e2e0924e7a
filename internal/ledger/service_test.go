package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agave/factoring-ledger/internal/ledger"
)

const testRFC = "FAC010203AB9"

func TestService_AvailableBalance(t *testing.T) {
	type testCase struct {
		name      string
		setupMock func(m *ledger.MockRepository)
		want      int64
		wantErr   error
	}

	tests := []testCase{
		{
			name: "SubtractsPendingWithdrawals",
			setupMock: func(m *ledger.MockRepository) {
				m.EXPECT().
					GetAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 1000}, nil)
				m.EXPECT().
					SumPendingWithdrawals(gomock.Any(), testRFC).
					Return(int64(300), nil)
			},
			want: 700,
		},
		{
			name: "NoHolds",
			setupMock: func(m *ledger.MockRepository) {
				m.EXPECT().
					GetAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 2500}, nil)
				m.EXPECT().
					SumPendingWithdrawals(gomock.Any(), testRFC).
					Return(int64(0), nil)
			},
			want: 2500,
		},
		{
			name: "UnknownAccount",
			setupMock: func(m *ledger.MockRepository) {
				m.EXPECT().
					GetAccount(gomock.Any(), testRFC).
					Return(nil, ledger.ErrNotFound)
			},
			wantErr: ledger.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := ledger.NewMockRepository(ctrl)
			tt.setupMock(repo)

			svc := ledger.NewService(repo, nil)
			got, err := svc.AvailableBalance(context.Background(), testRFC)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_CreateWithdraw(t *testing.T) {
	type testCase struct {
		name      string
		amount    int64
		setupMock func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, n *ledger.MockNotifier)
		wantErr   error
	}

	tests := []testCase{
		{
			name:      "ZeroAmount",
			amount:    0,
			setupMock: func(_ *ledger.MockRepository, _ *ledger.MockLedgerTx, _ *ledger.MockNotifier) {},
			wantErr:   ledger.ErrInvalidAmount,
		},
		{
			name:      "NegativeAmount",
			amount:    -50,
			setupMock: func(_ *ledger.MockRepository, _ *ledger.MockLedgerTx, _ *ledger.MockNotifier) {},
			wantErr:   ledger.ErrInvalidAmount,
		},
		{
			name:   "Success",
			amount: 400,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, n *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 1000}, nil)
				ltx.EXPECT().
					SumPendingWithdrawals(gomock.Any(), testRFC).
					Return(int64(300), nil)
				ltx.EXPECT().
					InsertPending(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, tx *ledger.PendingTransaction) error {
						tx.ID = 42
						return nil
					})
				ltx.EXPECT().Commit().Return(nil)
				ltx.EXPECT().Rollback().Return(nil)
				n.EXPECT().
					Publish(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, ev ledger.Event) error {
						assert.Equal(t, ledger.EventWithdrawCreated, ev.Kind)
						assert.Equal(t, int64(42), ev.TransactionID)
						assert.Equal(t, int64(400), ev.Amount)
						return nil
					})
			},
		},
		{
			name:   "InsufficientAgainstHeldBalance",
			amount: 800,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, _ *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 1000}, nil)
				ltx.EXPECT().
					SumPendingWithdrawals(gomock.Any(), testRFC).
					Return(int64(300), nil)
				ltx.EXPECT().Rollback().Return(nil)
			},
			wantErr: ledger.ErrInsufficientBalance,
		},
		{
			name:   "ExactAvailableBalanceFits",
			amount: 700,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, n *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 1000}, nil)
				ltx.EXPECT().
					SumPendingWithdrawals(gomock.Any(), testRFC).
					Return(int64(300), nil)
				ltx.EXPECT().InsertPending(gomock.Any(), gomock.Any()).Return(nil)
				ltx.EXPECT().Commit().Return(nil)
				ltx.EXPECT().Rollback().Return(nil)
				n.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name:   "LockContention",
			amount: 100,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, _ *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockAccount(gomock.Any(), testRFC).
					Return(nil, ledger.ErrBusy)
				ltx.EXPECT().Rollback().Return(nil)
			},
			wantErr: ledger.ErrBusy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := ledger.NewMockRepository(ctrl)
			ltx := ledger.NewMockLedgerTx(ctrl)
			notifier := ledger.NewMockNotifier(ctrl)
			tt.setupMock(repo, ltx, notifier)

			svc := ledger.NewService(repo, notifier)
			got, err := svc.CreateWithdraw(context.Background(), testRFC, tt.amount)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, ledger.StatusPending, got.Status)
			assert.Equal(t, ledger.TypeWithdraw, got.Type)
		})
	}
}

func TestService_CreateDeposit(t *testing.T) {
	t.Run("InvalidAmount", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc := ledger.NewService(ledger.NewMockRepository(ctrl), nil)

		got, err := svc.CreateDeposit(context.Background(), testRFC, 0, nil)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
		assert.Nil(t, got)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := ledger.NewMockRepository(ctrl)
		repo.EXPECT().
			GetAccount(gomock.Any(), testRFC).
			Return(nil, ledger.ErrNotFound)

		svc := ledger.NewService(repo, nil)

		_, err := svc.CreateDeposit(context.Background(), testRFC, 500, nil)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("SuccessNoBalanceCheck", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := ledger.NewMockRepository(ctrl)
		notifier := ledger.NewMockNotifier(ctrl)

		// Balance is zero: deposits are additive and never checked
		// against the available balance.
		repo.EXPECT().
			GetAccount(gomock.Any(), testRFC).
			Return(&ledger.Account{RFC: testRFC, SettledBalance: 0}, nil)
		repo.EXPECT().
			InsertPendingTransaction(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, tx *ledger.PendingTransaction) error {
				tx.ID = 7
				return nil
			})
		notifier.EXPECT().
			Publish(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ev ledger.Event) error {
				assert.Equal(t, ledger.EventDepositCreated, ev.Kind)
				assert.Equal(t, ledger.TypeDeposit, ev.Type)
				return nil
			})

		svc := ledger.NewService(repo, notifier)

		got, err := svc.CreateDeposit(context.Background(), testRFC, 5000, []byte(`{"receipt":"r-1"}`))
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusPending, got.Status)
		assert.JSONEq(t, `{"receipt":"r-1"}`, string(got.Metadata))
	})
}

func TestService_CreateInvoicePayment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	notifier := ledger.NewMockNotifier(ctrl)

	repo.EXPECT().
		GetAccount(gomock.Any(), testRFC).
		Return(&ledger.Account{RFC: testRFC, SettledBalance: 100}, nil)
	repo.EXPECT().
		InsertPendingTransaction(gomock.Any(), gomock.Any()).
		Return(nil)
	notifier.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev ledger.Event) error {
			// Invoice payments share the deposit event kind but keep
			// their own type in the payload.
			assert.Equal(t, ledger.EventDepositCreated, ev.Kind)
			assert.Equal(t, ledger.TypeInvoicePayment, ev.Type)
			return nil
		})

	svc := ledger.NewService(repo, notifier)

	got, err := svc.CreateInvoicePayment(context.Background(), testRFC, 1200, []byte(`{"invoice_id":"inv-9"}`))
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeInvoicePayment, got.Type)
}

func TestService_Approve(t *testing.T) {
	type testCase struct {
		name      string
		id        int64
		setupMock func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, n *ledger.MockNotifier)
		wantErr   error
	}

	tests := []testCase{
		{
			name: "WithdrawDebitsSettledBalance",
			id:   11,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, n *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockPending(gomock.Any(), int64(11)).
					Return(&ledger.PendingTransaction{
						ID: 11, CompanyRFC: testRFC, Type: ledger.TypeWithdraw,
						Amount: 300, Status: ledger.StatusPending,
					}, nil)
				ltx.EXPECT().
					LockAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 1000}, nil)
				ltx.EXPECT().
					SumPendingWithdrawals(gomock.Any(), testRFC).
					Return(int64(300), nil)
				// Settled drops by the approved amount; the available
				// balance had already subtracted it while pending.
				ltx.EXPECT().UpdateBalance(gomock.Any(), testRFC, int64(700)).Return(nil)
				ltx.EXPECT().Resolve(gomock.Any(), int64(11), ledger.StatusApproved, "").Return(nil)
				ltx.EXPECT().Commit().Return(nil)
				ltx.EXPECT().Rollback().Return(nil)
				n.EXPECT().
					Publish(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, ev ledger.Event) error {
						assert.Equal(t, ledger.EventPendingTransactionApproved, ev.Kind)
						assert.Equal(t, int64(11), ev.TransactionID)
						return nil
					})
			},
		},
		{
			name: "WithdrawRevalidatedAfterBalanceShrank",
			id:   12,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, _ *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockPending(gomock.Any(), int64(12)).
					Return(&ledger.PendingTransaction{
						ID: 12, CompanyRFC: testRFC, Type: ledger.TypeWithdraw,
						Amount: 300, Status: ledger.StatusPending,
					}, nil)
				// Another approval drained the account since this hold
				// was created.
				ltx.EXPECT().
					LockAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 200}, nil)
				ltx.EXPECT().
					SumPendingWithdrawals(gomock.Any(), testRFC).
					Return(int64(300), nil)
				ltx.EXPECT().Rollback().Return(nil)
			},
			wantErr: ledger.ErrInsufficientBalance,
		},
		{
			name: "WithdrawOwnReservationExcluded",
			id:   13,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, n *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockPending(gomock.Any(), int64(13)).
					Return(&ledger.PendingTransaction{
						ID: 13, CompanyRFC: testRFC, Type: ledger.TypeWithdraw,
						Amount: 300, Status: ledger.StatusPending,
					}, nil)
				// settled 500, total held 500 (this 300 + another 200).
				// Available is 0, but excluding this hold's own
				// reservation the check is 300 <= 500 - (500-300).
				ltx.EXPECT().
					LockAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 500}, nil)
				ltx.EXPECT().
					SumPendingWithdrawals(gomock.Any(), testRFC).
					Return(int64(500), nil)
				ltx.EXPECT().UpdateBalance(gomock.Any(), testRFC, int64(200)).Return(nil)
				ltx.EXPECT().Resolve(gomock.Any(), int64(13), ledger.StatusApproved, "").Return(nil)
				ltx.EXPECT().Commit().Return(nil)
				ltx.EXPECT().Rollback().Return(nil)
				n.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name: "DepositCreditsSettledBalance",
			id:   14,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, n *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockPending(gomock.Any(), int64(14)).
					Return(&ledger.PendingTransaction{
						ID: 14, CompanyRFC: testRFC, Type: ledger.TypeDeposit,
						Amount: 250, Status: ledger.StatusPending,
					}, nil)
				ltx.EXPECT().
					LockAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 1000}, nil)
				ltx.EXPECT().UpdateBalance(gomock.Any(), testRFC, int64(1250)).Return(nil)
				ltx.EXPECT().Resolve(gomock.Any(), int64(14), ledger.StatusApproved, "").Return(nil)
				ltx.EXPECT().Commit().Return(nil)
				ltx.EXPECT().Rollback().Return(nil)
				n.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name: "InvoicePaymentCreditsSettledBalance",
			id:   15,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, n *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockPending(gomock.Any(), int64(15)).
					Return(&ledger.PendingTransaction{
						ID: 15, CompanyRFC: testRFC, Type: ledger.TypeInvoicePayment,
						Amount: 900, Status: ledger.StatusPending,
					}, nil)
				ltx.EXPECT().
					LockAccount(gomock.Any(), testRFC).
					Return(&ledger.Account{RFC: testRFC, SettledBalance: 100}, nil)
				ltx.EXPECT().UpdateBalance(gomock.Any(), testRFC, int64(1000)).Return(nil)
				ltx.EXPECT().Resolve(gomock.Any(), int64(15), ledger.StatusApproved, "").Return(nil)
				ltx.EXPECT().Commit().Return(nil)
				ltx.EXPECT().Rollback().Return(nil)
				n.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name: "UnknownOrResolvedID",
			id:   99,
			setupMock: func(m *ledger.MockRepository, ltx *ledger.MockLedgerTx, _ *ledger.MockNotifier) {
				m.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
				ltx.EXPECT().
					LockPending(gomock.Any(), int64(99)).
					Return(nil, ledger.ErrNotFound)
				ltx.EXPECT().Rollback().Return(nil)
			},
			wantErr: ledger.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := ledger.NewMockRepository(ctrl)
			ltx := ledger.NewMockLedgerTx(ctrl)
			notifier := ledger.NewMockNotifier(ctrl)
			tt.setupMock(repo, ltx, notifier)

			svc := ledger.NewService(repo, notifier)
			got, err := svc.Approve(context.Background(), tt.id)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, ledger.StatusApproved, got.Status)
		})
	}
}

func TestService_Reject(t *testing.T) {
	t.Run("MissingReason", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc := ledger.NewService(ledger.NewMockRepository(ctrl), nil)

		got, err := svc.Reject(context.Background(), 1, "")
		assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
		assert.Nil(t, got)

		var lerr *ledger.Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, "reason", lerr.Field)
	})

	t.Run("WithdrawReleasesHoldWithoutBalanceChange", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := ledger.NewMockRepository(ctrl)
		ltx := ledger.NewMockLedgerTx(ctrl)
		notifier := ledger.NewMockNotifier(ctrl)

		// No UpdateBalance expectation: rejecting must not touch the
		// settled balance for any transaction type.
		repo.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
		ltx.EXPECT().
			LockPending(gomock.Any(), int64(21)).
			Return(&ledger.PendingTransaction{
				ID: 21, CompanyRFC: testRFC, Type: ledger.TypeWithdraw,
				Amount: 300, Status: ledger.StatusPending,
			}, nil)
		ltx.EXPECT().
			LockAccount(gomock.Any(), testRFC).
			Return(&ledger.Account{RFC: testRFC, SettledBalance: 1000}, nil)
		ltx.EXPECT().Resolve(gomock.Any(), int64(21), ledger.StatusRejected, "receipt mismatch").Return(nil)
		ltx.EXPECT().Commit().Return(nil)
		ltx.EXPECT().Rollback().Return(nil)
		notifier.EXPECT().
			Publish(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ev ledger.Event) error {
				assert.Equal(t, ledger.EventPendingTransactionRejected, ev.Kind)
				assert.Equal(t, "receipt mismatch", ev.Reason)
				return nil
			})

		svc := ledger.NewService(repo, notifier)

		got, err := svc.Reject(context.Background(), 21, "receipt mismatch")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusRejected, got.Status)
		assert.Equal(t, "receipt mismatch", got.Reason)
	})

	t.Run("AlreadyResolved", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := ledger.NewMockRepository(ctrl)
		ltx := ledger.NewMockLedgerTx(ctrl)

		repo.EXPECT().Begin(gomock.Any()).Return(ltx, nil)
		ltx.EXPECT().
			LockPending(gomock.Any(), int64(22)).
			Return(nil, ledger.ErrNotFound)
		ltx.EXPECT().Rollback().Return(nil)

		svc := ledger.NewService(repo, nil)

		_, err := svc.Reject(context.Background(), 22, "duplicate")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

// Publish failures are logged and swallowed; the committed mutation
// must still be reported as a success to the caller.
func TestService_NotifierFailureDoesNotFailOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	notifier := ledger.NewMockNotifier(ctrl)

	repo.EXPECT().
		GetAccount(gomock.Any(), testRFC).
		Return(&ledger.Account{RFC: testRFC}, nil)
	repo.EXPECT().InsertPendingTransaction(gomock.Any(), gomock.Any()).Return(nil)
	notifier.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		Return(errors.New("broker unavailable"))

	svc := ledger.NewService(repo, notifier)

	got, err := svc.CreateDeposit(context.Background(), testRFC, 100, nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
