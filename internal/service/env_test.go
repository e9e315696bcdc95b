package service

import (
	"context"
	"path/filepath"
	"testing"

	"breakfastledger/internal/config"
	"breakfastledger/internal/infrastructure/database"
	"breakfastledger/internal/infrastructure/lock"
	"breakfastledger/internal/infrastructure/logger"
	"breakfastledger/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	db           *gorm.DB
	cfg          *config.Config
	notification *NotificationService
	ledger       *LedgerService
	accounts     *AccountService
	orders       *OrderService
	classOrders  *ClassOrderService
	recharges    *RechargeService
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Kafka.Topic.Notification = "breakfast-notification"
	cfg.Business.DefaultCreditLimit = 0
	cfg.Business.ReminderThreshold = 25
	cfg.Business.DangerThreshold = 3
	cfg.Business.StaleOrderMinutes = 30
	cfg.Business.MaxRetryCount = 3
	return cfg
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// sqlite 单写者
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	cfg := testConfig()
	l := logger.Discard()

	notification := NewNotificationService(db, cfg, l)
	risk := NewRiskService(db, notification, l)
	ledger := NewLedgerService(db, cfg, lock.NewMemoryLocker(), risk, l)
	accounts := NewAccountService(db, cfg)
	return &testEnv{
		db:           db,
		cfg:          cfg,
		notification: notification,
		ledger:       ledger,
		accounts:     accounts,
		orders:       NewOrderService(db, cfg, ledger, accounts, l),
		classOrders:  NewClassOrderService(db, cfg, ledger, l),
		recharges:    NewRechargeService(db, cfg, ledger, accounts, l),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newAccount 创建个人账户，初始余额通过一笔充值写入
func (e *testEnv) newAccount(t *testing.T, userID int64, balance string) *model.Account {
	t.Helper()
	ctx := context.Background()
	account, err := e.accounts.GetOrCreatePersonal(ctx, userID)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if dec(balance).IsPositive() {
		res := e.ledger.Recharge(ctx, &BalanceChangeRequest{
			AccountID:  account.ID,
			Amount:     dec(balance),
			SourceType: model.SourceTypeAdminManual,
		})
		if !res.Success {
			t.Fatalf("seed balance: %s %s", res.ErrorCode, res.ErrorMessage)
		}
		account.Balance = res.NewBalance
	}
	return account
}

func (e *testEnv) reloadAccount(t *testing.T, id int64) *model.Account {
	t.Helper()
	var account model.Account
	if err := e.db.First(&account, id).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	return &account
}

func (e *testEnv) transactions(t *testing.T, accountID int64) []*model.AccountTransaction {
	t.Helper()
	var list []*model.AccountTransaction
	if err := e.db.Where("account_id = ?", accountID).Order("id ASC").Find(&list).Error; err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return list
}

func (e *testEnv) riskEvents(t *testing.T, accountID int64) []*model.RiskEvent {
	t.Helper()
	var list []*model.RiskEvent
	if err := e.db.Where("account_id = ?", accountID).Order("id ASC").Find(&list).Error; err != nil {
		t.Fatalf("list risk events: %v", err)
	}
	return list
}

func (e *testEnv) newProduct(t *testing.T, name, price string, enabled bool) *model.Product {
	t.Helper()
	p := &model.Product{CategoryID: 1, Name: name, Price: dec(price), Unit: "份", Enabled: true}
	if err := e.db.Create(p).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	if !enabled {
		// enabled 零值会被列默认值覆盖，单独更新
		if err := e.db.Model(p).Update("enabled", false).Error; err != nil {
			t.Fatalf("disable product: %v", err)
		}
		p.Enabled = false
	}
	return p
}

func assertBalance(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("balance: got %s, want %s", got.StringFixed(2), want)
	}
}

// assertLedgerConsistent 余额等于流水有向金额之和，且最后一笔 balance_after 与余额一致
func (e *testEnv) assertLedgerConsistent(t *testing.T, accountID int64) {
	t.Helper()
	account := e.reloadAccount(t, accountID)
	sum := decimal.Zero
	list := e.transactions(t, accountID)
	for _, tr := range list {
		sum = sum.Add(tr.SignedAmount())
	}
	if !sum.Equal(account.Balance) {
		t.Errorf("ledger sum %s != balance %s", sum.StringFixed(2), account.Balance.StringFixed(2))
	}
	if len(list) > 0 && !list[len(list)-1].BalanceAfter.Equal(account.Balance) {
		t.Errorf("last balance_after %s != balance %s",
			list[len(list)-1].BalanceAfter.StringFixed(2), account.Balance.StringFixed(2))
	}
	if account.Balance.LessThan(account.Floor()) {
		t.Errorf("balance %s below floor %s", account.Balance, account.Floor())
	}
}

// hookLocker 每次加锁前执行 before，用来在账本调用之间插入观察或并发操作
type hookLocker struct {
	lock.AccountLocker
	calls  int
	before func(call int, accountID int64)
}

func (l *hookLocker) Lock(ctx context.Context, accountID int64) (func(), error) {
	l.calls++
	l.before(l.calls, accountID)
	return l.AccountLocker.Lock(ctx, accountID)
}

// withLocker 用指定的账户锁重新组装账本和下单服务，共享同一个数据库
func (e *testEnv) withLocker(locker lock.AccountLocker) (*OrderService, *ClassOrderService) {
	l := logger.Discard()
	ledger := NewLedgerService(e.db, e.cfg, locker, NewRiskService(e.db, e.notification, l), l)
	return NewOrderService(e.db, e.cfg, ledger, e.accounts, l), NewClassOrderService(e.db, e.cfg, ledger, l)
}
