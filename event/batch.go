package event

// Batch is the result of one ranged eth_getLogs scan.
type Batch struct {
	FromBlock uint64
	ToBlock   uint64
	Logs      []Log
}

// Len returns the number of logs.
func (b Batch) Len() int { return len(b.Logs) }

// Blocks returns how many blocks the scan covered, inclusive.
func (b Batch) Blocks() uint64 {
	if b.ToBlock < b.FromBlock {
		return 0
	}
	return b.ToBlock - b.FromBlock + 1
}
