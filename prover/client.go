/*
Client for the remote spell proving service.

The prover accepts a spell plus its app binaries and previous
transactions, generates a validity proof (seconds to minutes), and
returns the commit/spell transaction pair ready for signing. The call is
opaque and slow; there is no retry logic here. Retries happen one level
up, gated by the availability cache's UTXO/hash rules — resubmitting a
different spell for a UTXO the prover has already seen is rejected
remotely, which is the whole reason the spell subsystem freezes values.
*/
package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/zkusd-io/spellbind/spell"
)

const (
	DefaultURL = "https://v9.charms.dev/spells/prove"

	// proving takes minutes; the context may shorten this but the
	// transport must not cut a healthy proof short
	defaultTimeout = 10 * time.Minute
)

// ProveRequest is the prover's wire format.
type ProveRequest struct {
	Spell            string              `json:"spell"` // spell document, serialized
	Binaries         map[string]string   `json:"binaries"`
	PrevTxs          []map[string]string `json:"prev_txs"`
	FundingUtxo      string              `json:"funding_utxo"`
	FundingUtxoValue int64               `json:"funding_utxo_value"`
	ChangeAddress    string              `json:"change_address"`
	FeeRate          float64             `json:"fee_rate"`
	Chain            string              `json:"chain"`
}

// ProveResult is the ordered transaction pair emitted by the prover.
type ProveResult struct {
	CommitTxHex string
	SpellTxHex  string
}

type Client struct {
	url   string
	httpc *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:   url,
		httpc: &http.Client{Timeout: defaultTimeout},
	}
}

// EncodeSpell serializes a spell body for the request. JSON is a YAML
// subset, so the output is accepted wherever the prover expects a YAML
// spell string.
func EncodeSpell(body spell.Body) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Prove submits the request and blocks until the prover answers.
// Errors come back as-is: the caller decides whether the bound UTXO must
// be marked failed, this client does not interpret prover error bodies.
func (c *Client) Prove(ctx context.Context, req *ProveRequest) (*ProveResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logger.WithFields(logger.Fields{
		"fundingUtxo": req.FundingUtxo,
		"feeRate":     req.FeeRate,
	}).Info("submitting spell to prover, this may take minutes")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prover: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return decodeResult(body)
}

// decodeResult parses the prover's two-element array. Elements are
// either raw hex strings or {"bitcoin": hex} objects depending on the
// prover version.
func decodeResult(body []byte) (*ProveResult, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("prover: malformed response: %w", err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("prover: expected 2 transactions, got %d", len(raw))
	}

	txs := make([]string, 2)
	for i, el := range raw {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			txs[i] = s
			continue
		}
		var obj map[string]string
		if err := json.Unmarshal(el, &obj); err != nil {
			return nil, fmt.Errorf("prover: malformed transaction element %d: %w", i, err)
		}
		hex, ok := obj["bitcoin"]
		if !ok {
			return nil, fmt.Errorf("prover: transaction element %d has no bitcoin entry", i)
		}
		txs[i] = hex
	}

	return &ProveResult{CommitTxHex: txs[0], SpellTxHex: txs[1]}, nil
}
