// Package chain implements the C8 chain client: one instance per
// configured EVM chain, wrapping ethclient for reads, signed transactions
// for the settlement contract's operator entrypoints, and the local
// escrow mirror those transactions keep in sync. Every outbound call goes
// through a per-chain TokenBucket and reports its outcome to a
// HealthTracker, readable through Health(). Neither /api/settlement_health
// nor the settlement-health monitor reads that tracker.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"crosslot/internal/config"
	"crosslot/internal/escrow"
	"crosslot/internal/pricing"
	xchtypes "crosslot/pkg/types"
)

const sigEscrowOf = "escrowOf(address,address)"

// Chain wraps one EVM chain's RPC endpoint, the operator key authorized
// to call the settlement contract's operator entrypoints on it, and the
// off-chain mirrors (escrow ledger, rate limiter, health tracker) that
// depend on it.
type Chain struct {
	Name string

	client         *ethclient.Client
	chainID        *big.Int
	settlementAddr common.Address

	operatorKey  *ecdsa.PrivateKey
	operatorAddr common.Address

	bucket *TokenBucket
	health *HealthTracker
	Ledger *escrow.Ledger

	logger *slog.Logger
}

// Dial connects to one chain's RPC endpoint and loads its operator key.
// The connection is not retried here — a dial failure at startup is a
// ConfigError and fatal, per §7.
func Dial(ctx context.Context, name string, cfg config.ChainConfig, logger *slog.Logger) (*Chain, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain %s: dial %s: %w", name, cfg.RPCURL, err)
	}

	keyHex := strings.TrimPrefix(cfg.OperatorPrivateKey, "0x")
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain %s: parse operator private key: %w", name, err)
	}

	requestsPerSecond := cfg.RequestsPerSecond
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &Chain{
		Name:           name,
		client:         client,
		chainID:        big.NewInt(cfg.ChainID),
		settlementAddr: common.HexToAddress(cfg.SettlementAddress),
		operatorKey:    privateKey,
		operatorAddr:   crypto.PubkeyToAddress(privateKey.PublicKey),
		bucket:         NewTokenBucket(float64(burst), requestsPerSecond),
		health:         NewHealthTracker(5*time.Minute, 0.25),
		Ledger:         escrow.NewLedger(name),
		logger:         logger.With("component", "chain", "chain", name),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Chain) Close() {
	c.client.Close()
}

// Health exposes this chain's rolling RPC health tracker.
func (c *Chain) Health() *HealthTracker { return c.health }

// throttle blocks on the rate limiter and records the call's outcome
// against the health tracker once the caller knows the result.
func (c *Chain) throttle(ctx context.Context) (func(success bool), error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, fmt.Errorf("chain %s: rate limit wait: %w", c.Name, err)
	}
	return c.health.Record, nil
}

// EscrowOf reads a user's on-chain escrow balance for one token via the
// settlement contract's escrowOf view function, converts the raw integer
// units to a human-readable decimal using tokenDecimals, then refreshes
// the local mirror to match. The ledger always holds human-readable
// amounts — tokenDecimals scaling happens only at this RPC boundary and
// in calldata packing, never inside the ledger itself.
func (c *Chain) EscrowOf(ctx context.Context, user xchtypes.Address, token string, tokenDecimals int32) (xchtypes.EscrowBalance, error) {
	record, err := c.throttle(ctx)
	if err != nil {
		return xchtypes.EscrowBalance{}, err
	}

	data := selector(sigEscrowOf)
	data = append(data, packAddress(common.HexToAddress(string(user)))...)
	data = append(data, packAddress(common.HexToAddress(token))...)

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.settlementAddr,
		Data: data,
	}, nil)
	if err != nil {
		record(false)
		return xchtypes.EscrowBalance{}, fmt.Errorf("chain %s: escrowOf call: %w", c.Name, err)
	}
	record(true)

	if len(out) < 64 {
		return xchtypes.EscrowBalance{}, fmt.Errorf("chain %s: escrowOf returned %d bytes, want 64", c.Name, len(out))
	}
	total := new(big.Int).SetBytes(out[0:32])
	locked := new(big.Int).SetBytes(out[32:64])
	bal := xchtypes.EscrowBalance{
		Total:  pricing.FromChainUnits(total, tokenDecimals),
		Locked: pricing.FromChainUnits(locked, tokenDecimals),
	}
	c.Ledger.SetBalance(user, token, bal)
	return bal, nil
}

// Lock calls lockEscrowForOrder to move amount from available to locked
// on-chain for (user, token, orderID), mirroring the result into the
// local ledger only once the transaction is mined. amount is human-
// readable; it is scaled to tokenDecimals only for the calldata.
func (c *Chain) Lock(ctx context.Context, user xchtypes.Address, token string, amount decimal.Decimal, orderID uint64, tokenDecimals int32) error {
	data := callLockEscrowForOrder(common.HexToAddress(string(user)), common.HexToAddress(token), pricing.ToChainUnits(amount, tokenDecimals), orderID)
	if err := c.sendAndWait(ctx, data); err != nil {
		return fmt.Errorf("chain %s: lockEscrowForOrder(order %d): %w", c.Name, orderID, err)
	}
	if err := c.Ledger.Lock(user, token, amount, orderID); err != nil {
		c.logger.Warn("on-chain lock succeeded but local mirror rejected it", "order_id", orderID, "error", err)
	}
	return nil
}

// SettleSameChain calls settleSameChainTrade for a trade whose maker and
// taker both escrow on this chain.
func (c *Chain) SettleSameChain(ctx context.Context, trade SettlementTrade) error {
	data := callSettleSameChainTrade(trade.toCalldata())
	if err := c.sendAndWait(ctx, data); err != nil {
		return fmt.Errorf("chain %s: settleSameChainTrade(order %d): %w", c.Name, trade.OrderID, err)
	}
	c.applyMirror(trade)
	return nil
}

// SettleCrossLeg calls settleCrossChainTrade for one leg (source or
// destination) of a cross-chain trade. Each leg settles independently;
// the orchestrator reconciles the pair.
func (c *Chain) SettleCrossLeg(ctx context.Context, trade SettlementTrade, isSourceChain bool) error {
	data := callSettleCrossChainTrade(trade.toCalldata(), isSourceChain)
	if err := c.sendAndWait(ctx, data); err != nil {
		return fmt.Errorf("chain %s: settleCrossChainTrade(order %d, source=%v): %w", c.Name, trade.OrderID, isSourceChain, err)
	}
	c.applyMirror(trade)
	return nil
}

// ReportFailure calls reportSettlementFailure to record a permanently
// failed leg on-chain, so the contract's own bookkeeping agrees with the
// settlement record. The orchestrator calls it when it abandons a
// same-chain settlement; asymmetric cross-chain records are not reported.
func (c *Chain) ReportFailure(ctx context.Context, orderID uint64, chainID int64, isSourceChain bool, reason string) error {
	data := callReportSettlementFailure(orderID, chainID, isSourceChain, reason)
	if err := c.sendAndWait(ctx, data); err != nil {
		return fmt.Errorf("chain %s: reportSettlementFailure(order %d): %w", c.Name, orderID, err)
	}
	return nil
}

// EmergencyRefund calls emergencyRefundAsymmetricSettlement to return
// escrow to the party stranded by an asymmetric settlement.
func (c *Chain) EmergencyRefund(ctx context.Context, orderID uint64, trade SettlementTrade, proof []byte) error {
	data := callEmergencyRefund(orderID, trade.toCalldata(), proof)
	if err := c.sendAndWait(ctx, data); err != nil {
		return fmt.Errorf("chain %s: emergencyRefundAsymmetricSettlement(order %d): %w", c.Name, orderID, err)
	}
	// A refund reverses whichever debit this chain had already applied;
	// crediting the original sender back is a mirror-only bookkeeping
	// move, the on-chain transfer is what the refund call above performs.
	for _, d := range trade.Debits {
		if err := c.Ledger.Deposit(d.Account, d.Token, d.Amount); err != nil {
			c.logger.Warn("refund mirror credit rejected", "order_id", orderID, "error", err)
		}
	}
	return nil
}

func (c *Chain) applyMirror(trade SettlementTrade) {
	for _, d := range trade.Debits {
		if err := c.Ledger.Settle(d.Account, d.Token, d.Amount); err != nil {
			c.logger.Warn("settle mirror debit rejected", "order_id", trade.OrderID, "account", d.Account, "error", err)
		}
	}
}

// MirrorDebit is one local escrow-mirror update to apply once a settle
// call for this chain confirms: Amount of Token moves out of Account's
// locked balance. The on-chain contract is authoritative; this is only
// the off-chain cache the pre-admission check reads.
type MirrorDebit struct {
	Account xchtypes.Address
	Token   string
	Amount  decimal.Decimal
}

// SettlementTrade is the chain-agnostic shape the settlement orchestrator
// hands to a Chain for any of the settle/refund entrypoints; toCalldata
// converts its TradeData fields to the contract's on-wire tuple. Debits
// carries the mirror updates this specific call (same-chain, or one
// cross-chain leg) should apply on success — same-chain settlement debits
// both sides, a cross-chain leg debits only the side whose transfer that
// leg performs.
type SettlementTrade struct {
	Maker, Taker, ReceiveWallet xchtypes.Address
	BaseToken, QuoteToken       string
	BaseDecimals, QuoteDecimals int32
	Price, Quantity             decimal.Decimal
	Nonce1, Nonce2              uint64
	OrderID                     uint64
	Debits                      []MirrorDebit
}

// toCalldata scales Price and Quantity to on-chain integer units: Quantity
// by the base token's decimals, Price (quote per base) by the quote
// token's decimals, matching the scale the contract's own quote-amount
// bookkeeping (price * quantity / 10**baseDecimals) expects.
func (t SettlementTrade) toCalldata() tradeCalldata {
	return tradeCalldata{
		Maker:         common.HexToAddress(string(t.Maker)),
		Taker:         common.HexToAddress(string(t.Taker)),
		ReceiveWallet: common.HexToAddress(string(t.ReceiveWallet)),
		BaseToken:     common.HexToAddress(t.BaseToken),
		QuoteToken:    common.HexToAddress(t.QuoteToken),
		Price:         pricing.ToChainUnits(t.Price, t.QuoteDecimals),
		Quantity:      pricing.ToChainUnits(t.Quantity, t.BaseDecimals),
		Nonce1:        new(big.Int).SetUint64(t.Nonce1),
		Nonce2:        new(big.Int).SetUint64(t.Nonce2),
		OrderID:       new(big.Int).SetUint64(t.OrderID),
	}
}

// sendAndWait builds, signs, and submits a transaction calling the
// settlement contract with the given calldata, then polls for its
// receipt. A reverted receipt is a PermanentChain failure; an RPC error
// while submitting or polling is TransientChain (the caller decides which
// by the concrete error returned).
func (c *Chain) sendAndWait(ctx context.Context, data []byte) error {
	record, err := c.throttle(ctx)
	if err != nil {
		return err
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.operatorAddr)
	if err != nil {
		record(false)
		return fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		record(false)
		return fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.operatorAddr,
		To:   &c.settlementAddr,
		Data: data,
	})
	if err != nil {
		record(false)
		return fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.settlementAddr,
		Value:    big.NewInt(0),
		Gas:      gasLimit + gasLimit/5, // 20% headroom over the estimate
		GasPrice: gasPrice,
		Data:     data,
	})

	signer := types.LatestSignerForChainID(c.chainID)
	signedTx, err := types.SignTx(tx, signer, c.operatorKey)
	if err != nil {
		record(false)
		return fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		record(false)
		return fmt.Errorf("send transaction: %w", err)
	}

	receipt, err := c.waitMined(ctx, signedTx.Hash())
	if err != nil {
		record(false)
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		record(false)
		return fmt.Errorf("transaction %s reverted", signedTx.Hash().Hex())
	}
	record(true)
	return nil
}

// waitMined polls for a transaction receipt, adapted from the teacher's
// order-status polling loop rather than go-ethereum's bind helpers (this
// repo has no generated contract binding to pull that dependency in for).
func (c *Chain) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("poll receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
