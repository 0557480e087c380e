package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// transferGasLimit is a generous static limit for an ERC-20 transfer.
const transferGasLimit = 100_000

// erc20ABI covers the two calls the agent makes.
const erc20ABI = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// InsufficientFundsError reports a transfer larger than the wallet's balance,
// both values in base units.
type InsufficientFundsError struct {
	Have *big.Int
	Need *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s USDC, need %s USDC",
		FromUnits(e.Have), FromUnits(e.Need))
}

// ErrTransactionFailed is returned when a transfer is mined with a failed
// receipt status.
var ErrTransactionFailed = errors.New("transaction failed")

// Config describes the chain endpoint and signing key for the agent's wallet.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
}

// Client holds the bot's USDC wallet on Base: one signing key, one ERC-20
// contract, one RPC connection.
type Client struct {
	eth      *ethclient.Client
	erc20    abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
}

// NewClient dials the RPC endpoint and loads the signing key.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, errors.New("wallet RPC URL is not configured")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid USDC contract address %q", cfg.ContractAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse wallet private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse ERC-20 ABI: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	return &Client{
		eth:      eth,
		erc20:    parsed,
		contract: common.HexToAddress(cfg.ContractAddress),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// Address returns the wallet's own address as a hex string.
func (c *Client) Address() string {
	return c.from.Hex()
}

// Balance reads the wallet's USDC balance in base units.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	data, err := c.erc20.Pack("balanceOf", c.from)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	out, err := c.erc20.Unpack("balanceOf", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected balanceOf return type")
	}
	return balance, nil
}

// Send transfers the given USDC amount to the recipient and waits for the
// transaction to be mined. It returns the transaction hash.
func (c *Client) Send(ctx context.Context, to string, amount float64) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid recipient address %q", to)
	}
	units := ToUnits(amount)
	if units.Sign() <= 0 {
		return "", fmt.Errorf("invalid transfer amount %v", amount)
	}

	balance, err := c.Balance(ctx)
	if err != nil {
		return "", err
	}
	if balance.Cmp(units) < 0 {
		return "", &InsufficientFundsError{Have: balance, Need: units}
	}

	data, err := c.erc20.Pack("transfer", common.HexToAddress(to), units)
	if err != nil {
		return "", fmt.Errorf("pack transfer: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch gas price: %w", err)
	}
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return "", fmt.Errorf("wait for receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signed.Hash().Hex(), ErrTransactionFailed
	}
	return signed.Hash().Hex(), nil
}

// ToUnits converts a USDC amount to base units (6 decimals), rounding to the
// nearest unit.
func ToUnits(amount float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e6))
	units, _ := scaled.Int(nil)
	// big.Float truncates toward zero; nudge to nearest.
	frac := new(big.Float).Sub(scaled, new(big.Float).SetInt(units))
	half, _ := frac.Float64()
	if half >= 0.5 {
		units.Add(units, big.NewInt(1))
	}
	return units
}

// FromUnits renders base units as a decimal USDC string with two places.
func FromUnits(units *big.Int) string {
	if units == nil {
		return "0.00"
	}
	value := new(big.Float).Quo(new(big.Float).SetInt(units), big.NewFloat(1e6))
	return value.Text('f', 2)
}

// ValidAddress reports whether s parses as a hex Ethereum address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}
