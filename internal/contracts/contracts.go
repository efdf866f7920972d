// Package contracts holds the thin ABI bindings for the on-chain surface the
// relayer consumes (spec §6): the two bridge contracts' intent events and
// read/write methods, plus the ERC-20 decimals() read. The on-chain contract
// logic itself is an external collaborator — only the ABI fragments needed
// to encode/decode these specific calls live here.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const bridgeABIJSON = `[
	{
		"type": "event",
		"name": "AssetsBuy",
		"inputs": [
			{"name": "user", "type": "address", "indexed": false},
			{"name": "assetIn", "type": "address", "indexed": false},
			{"name": "amountIn", "type": "uint256", "indexed": false},
			{"name": "l2TargetToken", "type": "address", "indexed": false},
			{"name": "deadline", "type": "uint256", "indexed": false},
			{"name": "nonce", "type": "uint256", "indexed": false}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "ASSETS_SOLD",
		"inputs": [
			{"name": "user", "type": "address", "indexed": false},
			{"name": "tokenToSell", "type": "address", "indexed": false},
			{"name": "amountIn", "type": "uint256", "indexed": false},
			{"name": "targetL1Asset", "type": "address", "indexed": false},
			{"name": "deadline", "type": "uint256", "indexed": false},
			{"name": "nonce", "type": "uint256", "indexed": false}
		],
		"anonymous": false
	},
	{
		"type": "function",
		"name": "DOMAIN_SEPARATOR",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "bytes32"}]
	},
	{
		"type": "function",
		"name": "usedNonces",
		"stateMutability": "view",
		"inputs": [{"name": "user", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "getUserLpShare",
		"stateMutability": "view",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "asset", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "executeBuy",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "l2Token", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "minOut", "type": "uint256"},
			{"name": "nonce", "type": "uint256"},
			{"name": "deadline", "type": "uint256"},
			{"name": "sig", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "withdraw",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "asset", "type": "address"},
			{"name": "lpShare", "type": "uint256"},
			{"name": "nonce", "type": "uint256"},
			{"name": "deadline", "type": "uint256"},
			{"name": "sig", "type": "bytes"}
		],
		"outputs": []
	}
]`

const erc20ABIJSON = `[
	{
		"type": "function",
		"name": "decimals",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint8"}]
	}
]`

// Event/method names, named once so callers never typo a string literal.
const (
	EventAssetsBuy  = "AssetsBuy"
	EventAssetsSold = "ASSETS_SOLD"

	MethodDomainSeparator = "DOMAIN_SEPARATOR"
	MethodUsedNonces      = "usedNonces"
	MethodUserLpShare     = "getUserLpShare"
	MethodExecuteBuy      = "executeBuy"
	MethodWithdraw        = "withdraw"
	MethodDecimals        = "decimals"
)

// BridgeABI parses and returns the bridge contract's ABI. Both L1 and L2
// bridge contracts share one ABI surface; only the event each side emits
// differs.
func BridgeABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(bridgeABIJSON))
}

// ERC20ABI parses and returns the minimal ERC-20 ABI (decimals() only) the
// Relayer needs for amount normalization.
func ERC20ABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(erc20ABIJSON))
}
