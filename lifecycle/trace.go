package lifecycle

import (
	"github.com/ethereum/go-ethereum/log"
)

// ScanTrace carries the per-opportunity scan_id through every log line a
// single flashblock's processing produces, so external log analysis can
// join wire-in and tx-out records on one key (§4.C11).
type ScanTrace struct {
	ScanID string
	log    log.Logger
}

// NewScanTrace returns a ScanTrace whose log lines are automatically
// tagged with scan_id.
func NewScanTrace(scanID string, logger log.Logger) ScanTrace {
	if logger == nil {
		logger = log.Root()
	}
	return ScanTrace{ScanID: scanID, log: logger.New("scan_id", scanID)}
}

// Logger returns the scan-tagged logger.
func (t ScanTrace) Logger() log.Logger {
	return t.log
}
