// Package launchpad holds the contract surface of the launchpad, its tokens and the price oracle.
package launchpad

import (
	"github.com/84hero/launchpad-indexer/pkg/decoder"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Event kinds, also the keys of the dedup log.
const (
	EventTokenDeployed = "TokenDeployed"
	EventTrade         = "Trade"
)

// EventKinds lists every indexed event kind.
var EventKinds = []string{EventTokenDeployed, EventTrade}

// Method names used by the chain reader.
const (
	MethodGetAmountOut      = "getAmountOut"
	MethodTotalSupply       = "totalSupply"
	MethodDecimals          = "decimals"
	MethodGetLatestETHPrice = "getLatestETHPrice"
)

// LaunchpadABI is shared by the V1 and V2 deployments.
const LaunchpadABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"token","type":"address"},
		{"indexed":true,"internalType":"address","name":"creator","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"index","type":"uint256"}
	],"name":"TokenDeployed","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"user","type":"address"},
		{"indexed":true,"internalType":"address","name":"token","type":"address"},
		{"indexed":false,"internalType":"bool","name":"isBuy","type":"bool"},
		{"indexed":false,"internalType":"uint256","name":"ethAmount","type":"uint256"},
		{"indexed":false,"internalType":"uint256","name":"tokenAmount","type":"uint256"}
	],"name":"Trade","type":"event"},
	{"inputs":[
		{"internalType":"address","name":"token","type":"address"},
		{"internalType":"uint256","name":"amountIn","type":"uint256"},
		{"internalType":"bool","name":"isBuy","type":"bool"}
	],"name":"getAmountOut","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const ERC20ABI = `[
	{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// OracleABI prices one native unit in USD with 8 decimals.
const OracleABI = `[
	{"inputs":[],"name":"getLatestETHPrice","outputs":[{"internalType":"int256","name":"","type":"int256"}],"stateMutability":"view","type":"function"}
]`

var (
	launchpadDecoder = mustDecoder(LaunchpadABI)
	erc20Decoder     = mustDecoder(ERC20ABI)
	oracleDecoder    = mustDecoder(OracleABI)
)

func mustDecoder(raw string) *decoder.ABIWrapper {
	d, err := decoder.NewFromJSON(raw)
	if err != nil {
		panic("launchpad: invalid abi: " + err.Error())
	}
	return d
}

// ABI returns the parsed launchpad ABI.
func ABI() abi.ABI { return launchpadDecoder.ABI() }

// ERC20 returns the parsed token ABI.
func ERC20() abi.ABI { return erc20Decoder.ABI() }

// Oracle returns the parsed price oracle ABI.
func Oracle() abi.ABI { return oracleDecoder.ABI() }
