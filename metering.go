package statecache

import (
	"math"
	"time"

	"github.com/soroban-registry/statecache/internal/ledger"
)

// CostModel estimates the resources a state write consumes:
//
//	cpu     = BaseCPU + bytes*CPUPerByte
//	mem     = BaseMem + bytes*MemPerByte
//	storage = bytes
type CostModel struct {
	BaseCPU    int64
	CPUPerByte int64
	BaseMem    int64
	MemPerByte int64
}

// DefaultCostModel returns the registry's standard write cost model.
func DefaultCostModel() CostModel {
	return CostModel{
		BaseCPU:    180_000,
		CPUPerByte: 90,
		BaseMem:    1_200_000,
		MemPerByte: 64,
	}
}

// Sample returns the ledger sample for writing n payload bytes at t.
func (m CostModel) Sample(contractID string, n int, t time.Time) ledger.Sample {
	bytes := int64(n)
	return ledger.Sample{
		ContractID:      contractID,
		CPUInstructions: linear(m.BaseCPU, bytes, m.CPUPerByte),
		MemBytes:        linear(m.BaseMem, bytes, m.MemPerByte),
		StorageBytes:    bytes,
		Timestamp:       t,
	}
}

// linear returns base + n*per, saturating at math.MaxInt64.
func linear(base, n, per int64) int64 {
	if n > 0 && per > 0 && n > (math.MaxInt64-base)/per {
		return math.MaxInt64
	}
	return base + n*per
}
