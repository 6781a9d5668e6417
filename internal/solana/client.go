// Package solana adapts the Solana JSON-RPC API to the two narrow
// contracts the core consumes: settlement verification against finalized
// chain state, and credit balance reads derived from the credits token
// mint. It re-specifies neither; both are plain RPC reads.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"solchat/internal/payment"
)

// DefaultRPCURL is the devnet RPC endpoint.
const DefaultRPCURL = "https://api.devnet.solana.com"

// Client talks to a Solana RPC node.
type Client struct {
	rpcURL string
	// treasury is the wallet settlements must be sent to.
	treasury string
	// mint is the credits token mint balances are derived from.
	mint       string
	httpClient *http.Client
}

// NewClient creates a client for the given RPC endpoint.
func NewClient(rpcURL, treasury, mint string) *Client {
	if rpcURL == "" {
		rpcURL = DefaultRPCURL
	}
	return &Client{
		rpcURL:     rpcURL,
		treasury:   treasury,
		mint:       mint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one JSON-RPC request and unmarshals the result.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("RPC call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read RPC response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("RPC returned error: %s - %s", resp.Status, string(respBody))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to parse RPC response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("RPC error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return json.Unmarshal(envelope.Result, result)
}

type parsedInstruction struct {
	Parsed struct {
		Type string `json:"type"`
		Info struct {
			Source      string `json:"source"`
			Destination string `json:"destination"`
			Lamports    int64  `json:"lamports"`
		} `json:"info"`
	} `json:"parsed"`
}

// VerifyPayment checks whether the signature settles a finalized transfer
// of at least expectedLamports from payerWallet to the treasury. It is an
// idempotent read of finalized chain state: a definitive accept or reject
// is a Verification, a transport fault is an error.
func (c *Client) VerifyPayment(ctx context.Context, signature, payerWallet string, expectedLamports int64) (payment.Verification, error) {
	var tx *struct {
		Meta *struct {
			Err interface{} `json:"err"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				Instructions []parsedInstruction `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
	}

	params := []interface{}{
		signature,
		map[string]interface{}{"encoding": "jsonParsed", "commitment": "finalized", "maxSupportedTransactionVersion": 0},
	}
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return payment.Verification{}, err
	}

	if tx == nil {
		return payment.Verification{Valid: false, Error: "transaction not found"}, nil
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		return payment.Verification{Valid: false, Error: "transaction failed on chain"}, nil
	}

	for _, instruction := range tx.Transaction.Message.Instructions {
		info := instruction.Parsed.Info
		if instruction.Parsed.Type != "transfer" {
			continue
		}
		if info.Source != payerWallet || info.Destination != c.treasury {
			continue
		}
		if info.Lamports < expectedLamports {
			return payment.Verification{
				Valid: false,
				Error: fmt.Sprintf("insufficient amount: got %d lamports, expected %d", info.Lamports, expectedLamports),
			}, nil
		}
		return payment.Verification{Valid: true}, nil
	}

	return payment.Verification{Valid: false, Error: "no matching transfer to treasury found"}, nil
}

// CreditBalance sums the wallet's token accounts for the credits mint.
// Wallets with no token account have balance 0.
func (c *Client) CreditBalance(ctx context.Context, wallet string) (int64, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}

	params := []interface{}{
		wallet,
		map[string]interface{}{"mint": c.mint},
		map[string]interface{}{"encoding": "jsonParsed"},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, err
	}

	var total int64
	for _, entry := range result.Value {
		amount, err := strconv.ParseInt(entry.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse token amount: %w", err)
		}
		total += amount
	}
	return total, nil
}

// ExplorerURL returns the Solana explorer link for a transaction
// signature on the given network. Empty for an empty signature.
func ExplorerURL(signature, network string) string {
	if signature == "" {
		return ""
	}
	url := "https://explorer.solana.com/tx/" + signature
	if network != "mainnet-beta" {
		url += "?cluster=" + network
	}
	return url
}
