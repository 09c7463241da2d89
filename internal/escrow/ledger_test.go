package escrow

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDepositLockSettleAccounting(t *testing.T) {
	t.Parallel()
	l := NewLedger("ethereum")

	if err := l.Deposit("A", "HBAR", d("100")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.Lock("A", "HBAR", d("60"), 1); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	bal := l.BalanceOf("A", "HBAR")
	if !bal.Total.Equal(d("100")) || !bal.Locked.Equal(d("60")) || !bal.Available().Equal(d("40")) {
		t.Fatalf("balance after lock = %+v, want total=100 locked=60 available=40", bal)
	}

	if err := l.Settle("A", "HBAR", d("60")); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	bal = l.BalanceOf("A", "HBAR")
	if !bal.Total.Equal(d("40")) || !bal.Locked.IsZero() {
		t.Fatalf("balance after settle = %+v, want total=40 locked=0", bal)
	}
}

func TestLockRejectsDoubleLockForSameOrder(t *testing.T) {
	t.Parallel()
	l := NewLedger("ethereum")
	_ = l.Deposit("A", "HBAR", d("100"))

	if err := l.Lock("A", "HBAR", d("10"), 1); err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	err := l.Lock("A", "HBAR", d("10"), 1)
	if !errors.Is(err, ErrLockExists) {
		t.Fatalf("second Lock err = %v, want ErrLockExists", err)
	}
}

func TestLockRejectsInsufficientAvailable(t *testing.T) {
	t.Parallel()
	l := NewLedger("ethereum")
	_ = l.Deposit("A", "HBAR", d("10"))

	err := l.Lock("A", "HBAR", d("20"), 1)
	if !errors.Is(err, ErrInsufficientAvailable) {
		t.Fatalf("err = %v, want ErrInsufficientAvailable", err)
	}
}

func TestWithdrawAvailableRejectsBeyondAvailable(t *testing.T) {
	t.Parallel()
	l := NewLedger("ethereum")
	_ = l.Deposit("A", "HBAR", d("100"))
	_ = l.Lock("A", "HBAR", d("80"), 1)

	err := l.WithdrawAvailable("A", "HBAR", d("30"))
	if !errors.Is(err, ErrInsufficientAvailable) {
		t.Fatalf("err = %v, want ErrInsufficientAvailable", err)
	}
	if err := l.WithdrawAvailable("A", "HBAR", d("20")); err != nil {
		t.Fatalf("withdraw within available: %v", err)
	}
}

func TestSettleRejectsBeyondLocked(t *testing.T) {
	t.Parallel()
	l := NewLedger("ethereum")
	_ = l.Deposit("A", "HBAR", d("100"))
	_ = l.Lock("A", "HBAR", d("10"), 1)

	err := l.Settle("A", "HBAR", d("50"))
	if !errors.Is(err, ErrInsufficientLocked) {
		t.Fatalf("err = %v, want ErrInsufficientLocked", err)
	}
}

func TestConcurrentDepositsAreSerialized(t *testing.T) {
	t.Parallel()
	l := NewLedger("ethereum")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Deposit("A", "HBAR", d("1"))
		}()
	}
	wg.Wait()

	bal := l.BalanceOf("A", "HBAR")
	if !bal.Total.Equal(d("100")) {
		t.Fatalf("Total = %s, want 100 after 100 concurrent deposits of 1", bal.Total)
	}
}

func TestAvailableHelper(t *testing.T) {
	t.Parallel()
	l := NewLedger("ethereum")
	_ = l.Deposit("A", "HBAR", d("50"))

	if !l.Available("A", "HBAR", d("50")) {
		t.Fatalf("Available(50) should be true for exactly-available balance")
	}
	if l.Available("A", "HBAR", d("50.000001")) {
		t.Fatalf("Available should be false beyond balance")
	}
}
