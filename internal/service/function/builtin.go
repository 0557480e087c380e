package function

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/cloudwego/eino/schema"

	"github.com/jmcpheron/jcn-bot/internal/wallet"
)

// Wallet is the slice of the USDC client the builtins need.
type Wallet interface {
	Address() string
	Balance(ctx context.Context) (*big.Int, error)
	Send(ctx context.Context, to string, amount float64) (string, error)
}

// Builtins returns the agent's stock functions. The wallet-backed pair is
// only registered when a wallet is configured.
func Builtins(w Wallet) []Registration {
	regs := []Registration{weatherRegistration()}
	if w != nil {
		regs = append(regs, balanceRegistration(w), sendRegistration(w))
	}
	return regs
}

func weatherRegistration() Registration {
	return Registration{
		Name:        "get_weather",
		Description: "Get the current weather for a specified city",
		Parameters: map[string]*Parameter{
			"city": {
				Type:        schema.String,
				Description: "The name of the city",
				Required:    true,
			},
			"country": {
				Type:        schema.String,
				Description: "The country code (e.g., 'US', 'UK')",
			},
		},
		Call: func(_ context.Context, args map[string]any) Result {
			city, _ := args["city"].(string)
			location := city
			if country, ok := args["country"].(string); ok && country != "" {
				location = fmt.Sprintf("%s, %s", city, country)
			}

			// Canned conditions; a real deployment would call a weather API.
			data := map[string]any{
				"temperature": "42°F",
				"condition":   "Sunny",
				"humidity":    "65%",
			}
			return Result{
				Success: true,
				Message: fmt.Sprintf("Current weather in %s: %s, %s", location, data["temperature"], data["condition"]),
				Data:    data,
			}
		},
	}
}

func balanceRegistration(w Wallet) Registration {
	return Registration{
		Name:        "get_base_usdc_balance",
		Description: "Get the current USDC balance of this bot's Base account",
		Parameters:  map[string]*Parameter{},
		Call: func(ctx context.Context, _ map[string]any) Result {
			units, err := w.Balance(ctx)
			if err != nil {
				return Result{Success: false, Message: fmt.Sprintf("Failed to get USDC balance: %v", err)}
			}
			return Result{
				Success: true,
				Message: fmt.Sprintf("Current USDC balance on Base: %s USDC", wallet.FromUnits(units)),
				Data: map[string]any{
					"balance":     wallet.FromUnits(units),
					"balance_wei": units.String(),
					"address":     w.Address(),
				},
			}
		},
	}
}

func sendRegistration(w Wallet) Registration {
	return Registration{
		Name:        "send_usdc",
		Description: "Send USDC from the bot's account to a specified address",
		Parameters: map[string]*Parameter{
			"to_address": {
				Type:        schema.String,
				Description: "Ethereum address to send USDC to",
				Required:    true,
			},
			"amount": {
				Type:        schema.Number,
				Description: "Amount of USDC to send",
				Required:    true,
			},
		},
		Call: func(ctx context.Context, args map[string]any) Result {
			to, _ := args["to_address"].(string)
			amount, ok := args["amount"].(float64)
			if !ok || amount <= 0 {
				return Result{Success: false, Message: "Amount must be a positive number"}
			}
			if !wallet.ValidAddress(to) {
				return Result{Success: false, Message: "Invalid Ethereum address provided"}
			}

			txHash, err := w.Send(ctx, to, amount)
			if err != nil {
				var short *wallet.InsufficientFundsError
				switch {
				case errors.As(err, &short):
					return Result{Success: false, Message: fmt.Sprintf(
						"Insufficient balance. Have %s USDC, need %s USDC",
						wallet.FromUnits(short.Have), wallet.FromUnits(short.Need))}
				case errors.Is(err, wallet.ErrTransactionFailed):
					return Result{
						Success: false,
						Message: "Transaction failed",
						Data:    map[string]any{"tx_hash": txHash},
					}
				default:
					return Result{Success: false, Message: fmt.Sprintf("Failed to send USDC: %v", err)}
				}
			}

			return Result{
				Success: true,
				Message: fmt.Sprintf("Successfully sent %v USDC to %s", amount, to),
				Data: map[string]any{
					"tx_hash":   txHash,
					"amount":    amount,
					"recipient": to,
				},
			}
		},
	}
}
