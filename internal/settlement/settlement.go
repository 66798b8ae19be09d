package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/niyobern/okx-binance/internal/config"
	"github.com/niyobern/okx-binance/internal/database"
	"github.com/niyobern/okx-binance/internal/exchange"
	"github.com/niyobern/okx-binance/internal/ledger"
	"github.com/niyobern/okx-binance/internal/model"
)

// ErrDepositNotConfirmed is returned when the deposit poll budget was
// exhausted without the transfer appearing on the destination venue.
var ErrDepositNotConfirmed = errors.New("settlement: deposit not confirmed within attempt budget")

// Mode selects between simulated and live settlement.
type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeLive      Mode = "live"
)

// StateMachine drives a filled position through settlement. In simulated
// mode it waits a fixed delay and completes. In live mode it runs the
// strictly sequential withdraw -> confirm deposit -> repay loan -> return
// USDT sequence; each step starts only after the previous step's explicit
// success, because each step commits value the system cannot recover if the
// next one fails first. Any unrecoverable failure leaves the position stuck
// for manual resolution, never silently dropped.
type StateMachine struct {
	logger         *slog.Logger
	clients        map[model.Venue]exchange.Client
	ledger         *ledger.Ledger
	repo           database.Repository
	networks       map[string]config.CoinNetwork
	mode           Mode
	simulatedDelay time.Duration
	pollInterval   time.Duration
	pollAttempts   int
}

// New creates a settlement state machine.
func New(
	logger *slog.Logger,
	clients map[model.Venue]exchange.Client,
	lgr *ledger.Ledger,
	repo database.Repository,
	networks map[string]config.CoinNetwork,
	mode Mode,
	simulatedDelay, pollInterval time.Duration,
	pollAttempts int,
) *StateMachine {
	return &StateMachine{
		logger:         logger.With("component", "settlement"),
		clients:        clients,
		ledger:         lgr,
		repo:           repo,
		networks:       networks,
		mode:           mode,
		simulatedDelay: simulatedDelay,
		pollInterval:   pollInterval,
		pollAttempts:   pollAttempts,
	}
}

// Settle runs the settlement sequence for a filled position to a terminal
// state: completed on success, stuck on any unrecoverable failure.
func (s *StateMachine) Settle(ctx context.Context, pos model.Position) error {
	if s.mode == ModeSimulated {
		return s.settleSimulated(ctx, pos)
	}
	return s.settleLive(ctx, pos)
}

func (s *StateMachine) settleSimulated(ctx context.Context, pos model.Position) error {
	s.logger.Info("simulated settlement started", "symbol", pos.Symbol, "delay", s.simulatedDelay)
	select {
	case <-ctx.Done():
		return s.stuck(pos, "simulated wait", ctx.Err())
	case <-time.After(s.simulatedDelay):
	}
	return s.complete(ctx, pos)
}

func (s *StateMachine) settleLive(ctx context.Context, pos model.Position) error {
	asset := strings.TrimSuffix(pos.Symbol, "USDT")
	network, ok := s.networks[asset]
	if !ok {
		return s.stuck(pos, "network lookup", fmt.Errorf("no network config for %s", asset))
	}
	buyClient := s.clients[pos.BuyVenue]
	sellClient := s.clients[pos.SellVenue]

	// Step 1: move the purchased asset to the short venue.
	if err := s.ledger.SetStatus(pos.Symbol, model.StatusTransferring); err != nil {
		return s.stuck(pos, "transferring transition", err)
	}
	txID, err := buyClient.Withdraw(ctx, asset, pos.Quantity, network.Addresses[string(pos.SellVenue)], network.Network)
	if err != nil {
		return s.stuck(pos, "withdrawal", err)
	}
	s.logger.Info("withdrawal submitted",
		"symbol", pos.Symbol,
		"asset", asset,
		"quantity", pos.Quantity,
		"network", network.Network,
		"tx_id", txID,
	)

	// Step 2: wait for the deposit to be confirmed on the destination venue.
	// The on-chain fee is charged against the transfer, so the arriving
	// amount may fall short of the withdrawn quantity by at most the
	// configured fee converted at the buy price.
	minAmount := pos.Quantity.Sub(decimal.NewFromFloat(network.WithdrawalFee).Div(pos.BuyPrice))
	if err := s.waitForDeposit(ctx, sellClient, asset, pos, txID, minAmount); err != nil {
		return s.stuck(pos, "deposit confirmation", err)
	}

	// Step 3: repay the margin loan with the now-confirmed assets.
	if err := s.ledger.SetStatus(pos.Symbol, model.StatusRepaying); err != nil {
		return s.stuck(pos, "repaying transition", err)
	}
	if err := sellClient.RepayMarginLoan(ctx, asset, pos.Quantity); err != nil {
		return s.stuck(pos, "loan repayment", err)
	}
	s.logger.Info("margin loan repaid", "symbol", pos.Symbol, "venue", pos.SellVenue, "quantity", pos.Quantity)

	// Step 4: return the USDT proceeds to the buy venue.
	if err := s.ledger.SetStatus(pos.Symbol, model.StatusReturning); err != nil {
		return s.stuck(pos, "returning transition", err)
	}
	usdtNetwork := s.networks["USDT"]
	proceeds := pos.Quantity.Mul(pos.SellPrice)
	returnTx, err := sellClient.Withdraw(ctx, "USDT", proceeds, usdtNetwork.Addresses[string(pos.BuyVenue)], usdtNetwork.Network)
	if err != nil {
		return s.stuck(pos, "usdt return transfer", err)
	}
	s.logger.Info("usdt return transfer submitted",
		"symbol", pos.Symbol,
		"amount", proceeds,
		"venue", pos.BuyVenue,
		"tx_id", returnTx,
	)

	return s.complete(ctx, pos)
}

// waitForDeposit polls the destination venue's deposit history at a fixed
// interval until the transfer shows up, the attempt budget runs out, or the
// context is cancelled. A deposit counts only when the transaction id
// matches and the credited amount covers the expected quantity net of the
// on-chain fee. A failed poll is transient and only logged; only exhausting
// the budget is a failure.
func (s *StateMachine) waitForDeposit(ctx context.Context, client exchange.Client, asset string, pos model.Position, txID string, minAmount decimal.Decimal) error {
	for attempt := 1; attempt <= s.pollAttempts; attempt++ {
		deposits, err := client.ConfirmedDeposits(ctx, asset)
		if err != nil {
			s.logger.Warn("deposit history query failed",
				"symbol", pos.Symbol,
				"attempt", attempt,
				"error", err,
			)
		}
		for _, d := range deposits {
			if d.Asset == asset && d.TxID == txID && d.Amount.GreaterThanOrEqual(minAmount) {
				s.logger.Info("deposit confirmed",
					"symbol", pos.Symbol,
					"asset", asset,
					"amount", d.Amount,
					"tx_id", txID,
					"attempt", attempt,
				)
				return nil
			}
		}
		s.logger.Info("waiting for deposit confirmation",
			"symbol", pos.Symbol,
			"attempt", attempt,
			"max_attempts", s.pollAttempts,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("settlement: cancelled while waiting for deposit: %w", ctx.Err())
		case <-time.After(s.pollInterval):
		}
	}
	return ErrDepositNotConfirmed
}

// complete records the trade and releases the ledger.
func (s *StateMachine) complete(ctx context.Context, pos model.Position) error {
	gross := pos.SellPrice.Sub(pos.BuyPrice).Mul(pos.Quantity)
	trade := model.CompletedTrade{
		Timestamp:    time.Now(),
		Symbol:       pos.Symbol,
		BuyVenue:     string(pos.BuyVenue),
		SellVenue:    string(pos.SellVenue),
		Quantity:     pos.Quantity,
		BuyPrice:     pos.BuyPrice,
		SellPrice:    pos.SellPrice,
		TransferFees: pos.TransferFees,
		GrossProfit:  gross,
		NetProfit:    gross.Sub(pos.TransferFees),
	}
	if err := s.repo.RecordTrade(ctx, trade); err != nil {
		// Bookkeeping failure must not hold the position open.
		s.logger.Error("failed to record trade", "symbol", pos.Symbol, "error", err)
	}

	if err := s.ledger.CompletePosition(pos.Symbol); err != nil {
		return fmt.Errorf("settlement: release position: %w", err)
	}
	s.logger.Info("settlement completed",
		"symbol", pos.Symbol,
		"gross_profit", trade.GrossProfit,
		"net_profit", trade.NetProfit,
	)
	return nil
}

// stuck transitions the position to the stuck terminal state with full
// context for manual reconciliation. Capital stays reserved.
func (s *StateMachine) stuck(pos model.Position, step string, cause error) error {
	s.logger.Error("settlement stuck, manual intervention required",
		"symbol", pos.Symbol,
		"step", step,
		"buy_venue", pos.BuyVenue,
		"sell_venue", pos.SellVenue,
		"quantity", pos.Quantity,
		"buy_price", pos.BuyPrice,
		"sell_price", pos.SellPrice,
		"error", cause,
	)
	s.ledger.MarkStuck(pos.Symbol)
	return fmt.Errorf("settlement: %s: %w", step, cause)
}
