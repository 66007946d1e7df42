package service

import (
	"context"
	"testing"

	"github.com/harrowgate/concordat/pkg/diplomacy"
)

func TestClearOrders(t *testing.T) {
	gameRepo := newMockGameRepo()
	phaseRepo := newMockPhaseRepo()
	cache := newMockCache()
	orderSvc := NewOrderService(gameRepo, phaseRepo, cache)

	gameID, powers := setupActiveGame(t, gameRepo, phaseRepo, cache)
	power := powers[0]
	var userID string
	for _, p := range gameRepo.players[gameID] {
		if p.Power == power {
			userID = p.UserID
		}
	}

	cache.SetOrders(context.Background(), gameID, power, []byte(`[{"type":"hold"}]`))
	cache.MarkReady(context.Background(), gameID, power)

	if err := orderSvc.ClearOrders(context.Background(), gameID, userID); err != nil {
		t.Fatalf("ClearOrders: %v", err)
	}

	data, err := cache.GetOrders(context.Background(), gameID, power)
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected cleared orders to be [], got %s", data)
	}

	readyCount, err := cache.ReadyCount(context.Background(), gameID)
	if err != nil {
		t.Fatalf("ReadyCount: %v", err)
	}
	if readyCount != 0 {
		t.Errorf("expected ready count 0 after clearing, got %d", readyCount)
	}
}

func TestClearOrdersNotInGame(t *testing.T) {
	gameRepo := newMockGameRepo()
	phaseRepo := newMockPhaseRepo()
	cache := newMockCache()
	orderSvc := NewOrderService(gameRepo, phaseRepo, cache)

	gameID, _ := setupActiveGame(t, gameRepo, phaseRepo, cache)

	if err := orderSvc.ClearOrders(context.Background(), gameID, "stranger"); err != ErrNotInGame {
		t.Errorf("expected ErrNotInGame, got %v", err)
	}
}

func TestParseUnitType(t *testing.T) {
	tests := []struct {
		input string
		want  diplomacy.UnitType
	}{
		{"army", diplomacy.Army},
		{"fleet", diplomacy.Fleet},
		{"", diplomacy.Army},
		{"invalid", diplomacy.Army},
	}
	for _, tt := range tests {
		got := parseUnitType(tt.input)
		if got != tt.want {
			t.Errorf("parseUnitType(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseOrderType(t *testing.T) {
	tests := []struct {
		input string
		want  diplomacy.OrderType
	}{
		{"hold", diplomacy.OrderHold},
		{"move", diplomacy.OrderMove},
		{"support", diplomacy.OrderSupport},
		{"convoy", diplomacy.OrderConvoy},
		{"", diplomacy.OrderHold},
		{"invalid", diplomacy.OrderHold},
	}
	for _, tt := range tests {
		got := parseOrderType(tt.input)
		if got != tt.want {
			t.Errorf("parseOrderType(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestToEngineOrder(t *testing.T) {
	input := OrderInput{
		UnitType:    "fleet",
		Location:    "nth",
		OrderType:   "convoy",
		Target:      "nwy",
		AuxLoc:      "lon",
		AuxTarget:   "nwy",
		AuxUnitType: "army",
	}
	order := toEngineOrder(input, diplomacy.England)
	if order.UnitType != diplomacy.Fleet {
		t.Errorf("expected Fleet, got %v", order.UnitType)
	}
	if order.Power != diplomacy.England {
		t.Errorf("expected England, got %v", order.Power)
	}
	if order.Location != "nth" {
		t.Errorf("expected nth, got %s", order.Location)
	}
	if order.Type != diplomacy.OrderConvoy {
		t.Errorf("expected Convoy, got %v", order.Type)
	}
	if order.Target != "nwy" {
		t.Errorf("expected nwy, got %s", order.Target)
	}
	if order.AuxUnitType != diplomacy.Army {
		t.Errorf("expected Army for aux, got %v", order.AuxUnitType)
	}
}

func TestToEngineOrderWithCoast(t *testing.T) {
	input := OrderInput{
		UnitType:    "fleet",
		Location:    "stp",
		Coast:       "nc",
		OrderType:   "move",
		Target:      "bar",
		TargetCoast: "",
	}
	order := toEngineOrder(input, diplomacy.Russia)
	if order.Coast != diplomacy.Coast("nc") {
		t.Errorf("expected coast nc, got %v", order.Coast)
	}
}

func TestTextOrdersToInputs_Movement(t *testing.T) {
	parsed, err := diplomacy.ParseOrderText("A bud - rum ; A tyr S A vie H")
	if err != nil {
		t.Fatalf("ParseOrderText error: %v", err)
	}
	inputs := textOrdersToInputs(parsed, diplomacy.PhaseMovement)
	if len(inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(inputs))
	}
	if inputs[0].OrderType != "move" || inputs[0].Target != "rum" {
		t.Errorf("move input: got %+v", inputs[0])
	}
	if inputs[1].OrderType != "support" {
		t.Errorf("support input: got %+v", inputs[1])
	}
}

func TestTextOrdersToInputs_Retreat(t *testing.T) {
	parsed, err := diplomacy.ParseOrderText("A vie - boh ; F tri D")
	if err != nil {
		t.Fatalf("ParseOrderText error: %v", err)
	}
	inputs := textOrdersToInputs(parsed, diplomacy.PhaseRetreat)
	if inputs[0].OrderType != "retreat_move" {
		t.Errorf("expected retreat_move, got %q", inputs[0].OrderType)
	}
	if inputs[1].OrderType != "disband" {
		t.Errorf("expected disband, got %q", inputs[1].OrderType)
	}
}

func TestTextOrdersToInputs_Build(t *testing.T) {
	parsed, err := diplomacy.ParseOrderText("BUILD A vie ; A war D ; WAIVE")
	if err != nil {
		t.Fatalf("ParseOrderText error: %v", err)
	}
	inputs := textOrdersToInputs(parsed, diplomacy.PhaseBuild)
	if len(inputs) != 2 {
		t.Fatalf("expected waive to be dropped, got %d inputs", len(inputs))
	}
	if inputs[0].OrderType != "build" {
		t.Errorf("expected build, got %q", inputs[0].OrderType)
	}
	if inputs[1].OrderType != "disband" {
		t.Errorf("expected disband, got %q", inputs[1].OrderType)
	}
}
