package service

import (
	"context"
	"errors"
	"testing"

	"breakfastledger/internal/model"

	"github.com/shopspring/decimal"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name          string
		txType        string
		amount        string
		wantDirection int8
		wantAmount    string
		wantErr       error
	}{
		{"consume", model.TransactionTypeConsume, "8", model.DirectionOut, "8", nil},
		{"recharge", model.TransactionTypeRecharge, "8.126", model.DirectionIn, "8.13", nil},
		{"adjust positive", model.TransactionTypeAdjust, "3", model.DirectionIn, "3", nil},
		{"adjust negative", model.TransactionTypeAdjust, "-3", model.DirectionOut, "3", nil},
		{"consume negative", model.TransactionTypeConsume, "-8", 0, "", ErrInvalidAmount},
		{"recharge zero", model.TransactionTypeRecharge, "0", 0, "", ErrInvalidAmount},
		{"adjust zero", model.TransactionTypeAdjust, "0.001", 0, "", ErrInvalidAmount},
		{"unknown type", "REFUND", "1", 0, "", ErrInvalidParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direction, amount, err := normalizeAmount(tt.txType, dec(tt.amount))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error: got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if direction != tt.wantDirection {
				t.Errorf("direction: got %d, want %d", direction, tt.wantDirection)
			}
			if !amount.Equal(dec(tt.wantAmount)) {
				t.Errorf("amount: got %s, want %s", amount, tt.wantAmount)
			}
		})
	}
}

func TestAdminTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const admin, user = int64(1), int64(2001)

	account := env.newAccount(t, user, "30")
	seed := env.transactions(t, account.ID)[0]

	adjust, err := env.ledger.PostAdjustment(ctx, &AdjustmentRequest{
		AdminUserID: admin, TargetUserID: user, Amount: dec("-5"), Remark: "补扣",
	})
	if err != nil {
		t.Fatalf("PostAdjustment: %v", err)
	}
	if adjust.Type != model.TransactionTypeAdjust || adjust.Direction != model.DirectionOut || !adjust.Amount.Equal(dec("5")) {
		t.Errorf("adjust: type=%s direction=%d amount=%s", adjust.Type, adjust.Direction, adjust.Amount)
	}
	if adjust.SourceType != model.SourceTypeAdminManual || adjust.OperatorUserID == nil || *adjust.OperatorUserID != admin {
		t.Errorf("adjust source: %s operator=%v", adjust.SourceType, adjust.OperatorUserID)
	}
	assertBalance(t, adjust.BalanceAfter, "25")

	recharge, err := env.ledger.PostAdjustment(ctx, &AdjustmentRequest{
		AdminUserID: admin, TargetUserID: user, Type: model.TransactionTypeRecharge, Amount: dec("10"),
	})
	if err != nil {
		t.Fatalf("PostAdjustment recharge: %v", err)
	}
	assertBalance(t, env.reloadAccount(t, account.ID).Balance, "35")

	t.Run("amend rewrites balance_after", func(t *testing.T) {
		amount := dec("20")
		if _, err := env.ledger.AmendTransaction(ctx, seed.ID, &AmendRequest{Amount: &amount}); err != nil {
			t.Fatalf("AmendTransaction: %v", err)
		}
		list := env.transactions(t, account.ID)
		want := []string{"20", "15", "25"}
		for i, tr := range list {
			assertBalance(t, tr.BalanceAfter, want[i])
		}
		assertBalance(t, env.reloadAccount(t, account.ID).Balance, "25")
	})

	t.Run("amend below floor rejected", func(t *testing.T) {
		amount := dec("-31")
		_, err := env.ledger.AmendTransaction(ctx, adjust.ID, &AmendRequest{Amount: &amount})
		if !errors.Is(err, ErrCreditLimitViolated) {
			t.Fatalf("expected ErrCreditLimitViolated, got %v", err)
		}
		if CodeOf(err) != CodeInsufficientFunds {
			t.Errorf("code: got %s", CodeOf(err))
		}
		assertBalance(t, env.reloadAccount(t, account.ID).Balance, "25")
		reloaded, _ := env.ledger.transactionRepo.GetByID(ctx, nil, adjust.ID)
		if !reloaded.Amount.Equal(dec("5")) {
			t.Errorf("rolled back amount: got %s", reloaded.Amount)
		}
	})

	t.Run("amend remark keeps adjust sign", func(t *testing.T) {
		remark := "更正备注"
		got, err := env.ledger.AmendTransaction(ctx, adjust.ID, &AmendRequest{Remark: &remark})
		if err != nil {
			t.Fatalf("AmendTransaction: %v", err)
		}
		if got.Description != remark || got.Direction != model.DirectionOut || !got.Amount.Equal(dec("5")) {
			t.Errorf("got description=%s direction=%d amount=%s", got.Description, got.Direction, got.Amount)
		}
		assertBalance(t, env.reloadAccount(t, account.ID).Balance, "25")
	})

	t.Run("amend type flips direction", func(t *testing.T) {
		consume := model.TransactionTypeConsume
		got, err := env.ledger.AmendTransaction(ctx, recharge.ID, &AmendRequest{Type: &consume})
		if err != nil {
			t.Fatalf("AmendTransaction: %v", err)
		}
		if got.Direction != model.DirectionOut {
			t.Errorf("direction: got %d", got.Direction)
		}
		assertBalance(t, env.reloadAccount(t, account.ID).Balance, "5")
	})

	t.Run("delete", func(t *testing.T) {
		if err := env.ledger.DeleteTransaction(ctx, recharge.ID); err != nil {
			t.Fatalf("DeleteTransaction: %v", err)
		}
		assertBalance(t, env.reloadAccount(t, account.ID).Balance, "15")
		if err := env.ledger.DeleteTransaction(ctx, recharge.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("second delete: got %v, want ErrNotFound", err)
		}
	})

	t.Run("post below floor rejected", func(t *testing.T) {
		_, err := env.ledger.PostAdjustment(ctx, &AdjustmentRequest{
			AdminUserID: admin, TargetUserID: user, Amount: dec("-100"),
		})
		if !errors.Is(err, ErrCreditLimitViolated) {
			t.Fatalf("expected ErrCreditLimitViolated, got %v", err)
		}
		if n := len(env.transactions(t, account.ID)); n != 2 {
			t.Errorf("transactions: got %d, want 2", n)
		}
	})

	t.Run("recalculate repairs drift", func(t *testing.T) {
		if err := env.db.Model(&model.Account{}).Where("id = ?", account.ID).Update("balance", dec("999")).Error; err != nil {
			t.Fatal(err)
		}
		balance, err := env.ledger.RecalculateBalance(ctx, account.ID)
		if err != nil {
			t.Fatalf("RecalculateBalance: %v", err)
		}
		assertBalance(t, balance, "15")
		env.assertLedgerConsistent(t, account.ID)
	})

	if _, err := env.ledger.AmendTransaction(ctx, 424242, &AmendRequest{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("amend missing: got %v, want ErrNotFound", err)
	}
}

func TestPostAdjustmentCreatesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	trans, err := env.ledger.PostAdjustment(ctx, &AdjustmentRequest{AdminUserID: 1, TargetUserID: 2002, Amount: decimal.NewFromInt(12)})
	if err != nil {
		t.Fatalf("PostAdjustment: %v", err)
	}
	account, err := env.accounts.GetMyAccount(ctx, 2002)
	if err != nil {
		t.Fatal(err)
	}
	if trans.AccountID != account.ID {
		t.Errorf("account: got %d, want %d", trans.AccountID, account.ID)
	}
	assertBalance(t, account.Balance, "12")
}
