// contract.go hand-packs calldata for the settlement contract's operator
// entrypoints. There is no generated contract binding here (no abigen
// step in this repo) — each entrypoint's 4-byte selector and argument
// encoding are built directly from the Solidity ABI encoding rules, the
// same way a minimal RPC client builds calldata without pulling in a full
// contract-binding toolchain.
package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Function signatures, matching §6's on-chain contract interface.
const (
	sigDepositToEscrow       = "depositToEscrow(address,uint256)"
	sigWithdrawFromEscrow    = "withdrawFromEscrow(address,uint256)"
	sigLockEscrowForOrder    = "lockEscrowForOrder(address,address,uint256,uint256)"
	sigSettleCrossChainTrade = "settleCrossChainTrade((address,address,address,address,address,uint256,uint256,uint256,uint256,uint256),bool)"
	sigSettleSameChainTrade  = "settleSameChainTrade((address,address,address,address,address,uint256,uint256,uint256,uint256,uint256))"
	sigReportFailure         = "reportSettlementFailure(uint256,uint256,bool,string)"
	sigEmergencyRefund       = "emergencyRefundAsymmetricSettlement(uint256,(address,address,address,address,address,uint256,uint256,uint256,uint256,uint256),bytes)"
)

// selector returns the 4-byte function selector for a Solidity signature.
func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func packAddress(addr common.Address) []byte {
	var out [32]byte
	copy(out[12:], addr[:])
	return out[:]
}

func packUint256(v *big.Int) []byte {
	var out [32]byte
	v.FillBytes(out[:])
	return out[:]
}

func packBool(b bool) []byte {
	var out [32]byte
	if b {
		out[31] = 1
	}
	return out[:]
}

// padded32 right-pads data to a 32-byte boundary.
func padded32(data []byte) []byte {
	rem := len(data) % 32
	if rem == 0 {
		return data
	}
	return append(data, make([]byte, 32-rem)...)
}

// tradeCalldata is the on-wire shape of the settlement contract's
// TradeData tuple: maker, taker, receiveWallet addresses plus the base
// and quote token addresses, then price/quantity/nonce1/nonce2/orderId as
// uint256. Every field is a static type, so the tuple itself is static:
// it packs as ten contiguous 32-byte words with no offset indirection.
type tradeCalldata struct {
	Maker         common.Address
	Taker         common.Address
	ReceiveWallet common.Address
	BaseToken     common.Address
	QuoteToken    common.Address
	Price         *big.Int
	Quantity      *big.Int
	Nonce1        *big.Int
	Nonce2        *big.Int
	OrderID       *big.Int
}

func (t tradeCalldata) pack() []byte {
	var out []byte
	out = append(out, packAddress(t.Maker)...)
	out = append(out, packAddress(t.Taker)...)
	out = append(out, packAddress(t.ReceiveWallet)...)
	out = append(out, packAddress(t.BaseToken)...)
	out = append(out, packAddress(t.QuoteToken)...)
	out = append(out, packUint256(t.Price)...)
	out = append(out, packUint256(t.Quantity)...)
	out = append(out, packUint256(t.Nonce1)...)
	out = append(out, packUint256(t.Nonce2)...)
	out = append(out, packUint256(t.OrderID)...)
	return out
}

func callDepositToEscrow(token common.Address, amount *big.Int) []byte {
	data := selector(sigDepositToEscrow)
	data = append(data, packAddress(token)...)
	data = append(data, packUint256(amount)...)
	return data
}

func callWithdrawFromEscrow(token common.Address, amount *big.Int) []byte {
	data := selector(sigWithdrawFromEscrow)
	data = append(data, packAddress(token)...)
	data = append(data, packUint256(amount)...)
	return data
}

func callLockEscrowForOrder(user, token common.Address, amount *big.Int, orderID uint64) []byte {
	data := selector(sigLockEscrowForOrder)
	data = append(data, packAddress(user)...)
	data = append(data, packAddress(token)...)
	data = append(data, packUint256(amount)...)
	data = append(data, packUint256(new(big.Int).SetUint64(orderID))...)
	return data
}

func callSettleCrossChainTrade(trade tradeCalldata, isSourceChain bool) []byte {
	data := selector(sigSettleCrossChainTrade)
	data = append(data, trade.pack()...)
	data = append(data, packBool(isSourceChain)...)
	return data
}

func callSettleSameChainTrade(trade tradeCalldata) []byte {
	data := selector(sigSettleSameChainTrade)
	data = append(data, trade.pack()...)
	return data
}

// callReportSettlementFailure has one dynamic argument (reason), so its
// head carries a 32-byte offset to the tail where the length-prefixed
// string lives.
func callReportSettlementFailure(orderID uint64, chainID int64, isSourceChain bool, reason string) []byte {
	data := selector(sigReportFailure)
	data = append(data, packUint256(new(big.Int).SetUint64(orderID))...)
	data = append(data, packUint256(big.NewInt(chainID))...)
	data = append(data, packBool(isSourceChain)...)

	const headWords = 4 // orderId, chainId, isSourceChain, offset
	offset := big.NewInt(int64(headWords * 32))
	data = append(data, packUint256(offset)...)

	reasonBytes := []byte(reason)
	data = append(data, packUint256(big.NewInt(int64(len(reasonBytes))))...)
	data = append(data, padded32(reasonBytes)...)
	return data
}

// callEmergencyRefund has one dynamic argument (proof) trailing a static
// tuple, encoded the same way: a head offset followed by length-prefixed
// bytes in the tail.
func callEmergencyRefund(orderID uint64, trade tradeCalldata, proof []byte) []byte {
	data := selector(sigEmergencyRefund)
	data = append(data, packUint256(new(big.Int).SetUint64(orderID))...)
	data = append(data, trade.pack()...)

	headWords := 1 + 10 + 1 // orderId + tradeData words + offset word
	offset := big.NewInt(int64(headWords * 32))
	data = append(data, packUint256(offset)...)

	data = append(data, packUint256(big.NewInt(int64(len(proof))))...)
	data = append(data, padded32(proof)...)
	return data
}
