package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"papertradingv1/internal/model"
)

func TestStore_FirstRunReturnsNil(t *testing.T) {
	s := New()
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot on first run, got %+v", snap)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := New()
	in := &model.Snapshot{
		Version: model.SnapshotVersion,
		Mode:    model.ModeLive,
		SavedAt: time.Now().UTC(),
		Portfolio: model.PaperPortfolio{
			Balance:        decimal.NewFromInt(99850),
			InitialCapital: decimal.NewFromInt(100000),
			Positions: map[string]model.PaperPosition{
				"AAPL": {
					Symbol:       "AAPL",
					Quantity:     decimal.NewFromInt(1),
					AvgPrice:     decimal.NewFromInt(150),
					CurrentPrice: decimal.NewFromInt(160),
				},
			},
		},
	}

	if err := s.Save(context.Background(), in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out == nil {
		t.Fatal("expected a snapshot")
	}
	if out.Version != model.SnapshotVersion || out.Mode != model.ModeLive {
		t.Errorf("version=%d mode=%s", out.Version, out.Mode)
	}
	if !out.Portfolio.Balance.Equal(decimal.NewFromInt(99850)) {
		t.Errorf("balance = %s, want 99850", out.Portfolio.Balance)
	}
	pos := out.Portfolio.Positions["AAPL"]
	if !pos.CurrentPrice.Equal(decimal.NewFromInt(160)) {
		t.Errorf("current price = %s, want 160", pos.CurrentPrice)
	}
}

func TestStore_SaveErr(t *testing.T) {
	s := New()
	want := errors.New("boom")
	s.SaveErr = want

	err := s.Save(context.Background(), &model.Snapshot{Version: model.SnapshotVersion})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if s.Saves != 0 {
		t.Errorf("saves = %d, want 0", s.Saves)
	}
}
