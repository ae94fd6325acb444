// Package distribute implements the encryption agent's share distribution:
// a raw data object is split into one secret share per registered
// computation agent, and share i is delivered to the agent at registry
// position i. Delivery is not atomic; the report tells the caller exactly
// which parties got their share.
package distribute

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"go.dedis.ch/mpcagent/registry"
	"go.dedis.ch/mpcagent/sharing"
	"go.dedis.ch/mpcagent/types"
)

// ErrPartialDistribution reports that some but not all agents received
// their share. The caller decides whether to resend (safe: the circuit id
// is reused, agents treat duplicates idempotently) or abort.
var ErrPartialDistribution = xerrors.New("partial distribution")

// Delivery is the outcome of sending one share to one agent
type Delivery struct {
	Agent      string
	PartyIndex int
	SessionID  string
	Err        error
}

// Report enumerates the per-agent outcome of one distribution
type Report struct {
	RequestID  string
	CircuitID  string
	Deliveries []Delivery
}

// Complete tells whether every agent received its share
func (r *Report) Complete() bool {
	for _, d := range r.Deliveries {
		if d.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the addresses of the agents that did not get their share
func (r *Report) Failed() []string {
	var failed []string
	for _, d := range r.Deliveries {
		if d.Err != nil {
			failed = append(failed, d.Agent)
		}
	}
	return failed
}

// Response converts the report to its API representation
func (r *Report) Response() types.DistributeResponse {
	resp := types.DistributeResponse{
		RequestID:  r.RequestID,
		CircuitID:  r.CircuitID,
		Complete:   r.Complete(),
		Deliveries: make([]types.DeliveryOutcome, len(r.Deliveries)),
	}
	for i, d := range r.Deliveries {
		outcome := types.DeliveryOutcome{
			Agent:      d.Agent,
			PartyIndex: d.PartyIndex,
			SessionID:  d.SessionID,
		}
		if d.Err != nil {
			outcome.Error = d.Err.Error()
		}
		resp.Deliveries[i] = outcome
	}
	return resp
}

// Client distributes secret shares to the computation agents of a registry
type Client struct {
	reg    *registry.Registry
	key    *ecdsa.PrivateKey
	client *http.Client
}

// NewClient creates a distribution client. The private key signs every
// share envelope; a nil key sends unsigned envelopes.
func NewClient(reg *registry.Registry, key *ecdsa.PrivateKey) *Client {
	return &Client{
		reg:    reg,
		key:    key,
		client: &http.Client{Timeout: time.Second * 30},
	}
}

// Distribute splits raw into one share per registered agent and sends them
// out in parallel. Partial failure returns the report together with
// ErrPartialDistribution; the caller owns the retry decision.
func (c *Client) Distribute(ctx context.Context, raw []byte, circuitID string) (*Report, error) {
	shares, err := sharing.Split(raw, c.reg.Len())
	if err != nil {
		return nil, xerrors.Errorf("failed to split data: %v", err)
	}

	report := &Report{
		RequestID:  xid.New().String(),
		CircuitID:  circuitID,
		Deliveries: make([]Delivery, c.reg.Len()),
	}

	log.Info().Str("request", report.RequestID).Str("circuit", circuitID).
		Int("parties", c.reg.Len()).Msg("distributing shares")

	g, ctx := errgroup.WithContext(ctx)
	for i, addr := range c.reg.Addresses() {
		i, addr := i, addr
		g.Go(func() error {
			sessionID, err := c.sendShare(ctx, addr, circuitID, i, shares[i])
			report.Deliveries[i] = Delivery{
				Agent:      addr,
				PartyIndex: i,
				SessionID:  sessionID,
				Err:        err,
			}
			// delivery faults are collected in the report, not propagated,
			// so one unreachable agent does not cancel the others
			return nil
		})
	}
	_ = g.Wait()

	if !report.Complete() {
		log.Warn().Str("request", report.RequestID).Str("circuit", circuitID).
			Msgf("distribution incomplete, failed agents: %v", report.Failed())
		return report, xerrors.Errorf("circuit %s, failed agents %v: %w",
			circuitID, report.Failed(), ErrPartialDistribution)
	}

	return report, nil
}

// sendShare signs and posts one share to one computation agent's session
// endpoint, returning the session id the agent admitted it under
func (c *Client) sendShare(ctx context.Context, addr, circuitID string,
	partyIndex int, share sharing.Share) (string, error) {

	secretShare := types.SecretShare{
		CircuitID:  circuitID,
		PartyIndex: partyIndex,
		NumParties: c.reg.Len(),
		Share:      share,
	}
	env, err := secretShare.Sign(c.key)
	if err != nil {
		return "", err
	}

	jsonData, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://%s/session", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", xerrors.Errorf("agent %s rejected share: status %d", addr, resp.StatusCode)
	}

	var submitResp types.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", err
	}
	return submitResp.SessionID, nil
}
