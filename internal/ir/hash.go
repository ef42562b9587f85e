package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainFlowEvent   = "agentflow/flow-event/v1"
	DomainNavSnapshot = "agentflow/nav-snapshot/v1"
	DomainTransaction = "agentflow/transaction/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// timestampValue renders t in a zone-independent form for hashing.
func timestampValue(t time.Time) IRString {
	return IRString(t.UTC().Format(time.RFC3339Nano))
}

// FlowEventID computes the content-addressed ID for a flow-log event.
// The same movement recorded twice (e.g. during crash replay of a tick)
// produces the same ID, which lets the history store ignore the duplicate.
func FlowEventID(kind FlowEventKind, contextID string, chainID int64, ts time.Time, usd float64) (string, error) {
	amount, err := NewIRDecimal(usd)
	if err != nil {
		return "", fmt.Errorf("FlowEventID: %w", err)
	}
	obj := IRObject{
		"kind":       IRString(kind),
		"context_id": IRString(contextID),
		"chain_id":   IRInt(chainID),
		"timestamp":  timestampValue(ts),
		"usd_value":  amount,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("FlowEventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFlowEvent, canonical), nil
}

// NavSnapshotID computes the content-addressed ID for a NAV snapshot.
func NavSnapshotID(contextID string, chainID int64, ts time.Time, totalUSD float64) (string, error) {
	total, err := NewIRDecimal(totalUSD)
	if err != nil {
		return "", fmt.Errorf("NavSnapshotID: %w", err)
	}
	obj := IRObject{
		"context_id": IRString(contextID),
		"chain_id":   IRInt(chainID),
		"timestamp":  timestampValue(ts),
		"total_usd":  total,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("NavSnapshotID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainNavSnapshot, canonical), nil
}

// TransactionID computes the content-addressed ID for a transaction history entry.
func TransactionID(contextID string, cycle int64, action string, ts time.Time) (string, error) {
	obj := IRObject{
		"context_id": IRString(contextID),
		"cycle":      IRInt(cycle),
		"action":     IRString(action),
		"timestamp":  timestampValue(ts),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TransactionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTransaction, canonical), nil
}

// NewFlowEvent builds a flow-log event with its ID filled in.
func NewFlowEvent(kind FlowEventKind, contextID string, chainID int64, ts time.Time, usd float64) (FlowLogEvent, error) {
	id, err := FlowEventID(kind, contextID, chainID, ts, usd)
	if err != nil {
		return FlowLogEvent{}, err
	}
	return FlowLogEvent{
		ID:        id,
		Kind:      kind,
		USDValue:  usd,
		Timestamp: ts.UTC(),
		ContextID: contextID,
		ChainID:   chainID,
	}, nil
}

// NewNavSnapshot builds a NAV snapshot with its ID filled in.
func NewNavSnapshot(contextID string, chainID int64, ts time.Time, totalUSD float64, positions []PositionValue) (NavSnapshot, error) {
	id, err := NavSnapshotID(contextID, chainID, ts, totalUSD)
	if err != nil {
		return NavSnapshot{}, err
	}
	return NavSnapshot{
		ID:        id,
		ContextID: contextID,
		ChainID:   chainID,
		TotalUSD:  totalUSD,
		Positions: positions,
		Timestamp: ts.UTC(),
	}, nil
}

// MustFlowEvent is like NewFlowEvent but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFlowEvent(kind FlowEventKind, contextID string, chainID int64, ts time.Time, usd float64) FlowLogEvent {
	ev, err := NewFlowEvent(kind, contextID, chainID, ts, usd)
	if err != nil {
		panic(err)
	}
	return ev
}

// MustNavSnapshot is like NewNavSnapshot but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNavSnapshot(contextID string, chainID int64, ts time.Time, totalUSD float64) NavSnapshot {
	snap, err := NewNavSnapshot(contextID, chainID, ts, totalUSD, nil)
	if err != nil {
		panic(err)
	}
	return snap
}
