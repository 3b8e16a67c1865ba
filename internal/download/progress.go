package download

import "time"

// Progress is the latest transfer snapshot of a task. Only one snapshot is kept per task.
type Progress struct {
	DownloadedBytes uint64    `json:"downloadedBytes"`
	TotalBytes      *uint64   `json:"totalBytes,omitempty"` // nil when the size is unknown
	SpeedBPS        uint64    `json:"speedBps"`
	ETASeconds      *uint64   `json:"etaSeconds,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
}

// CompletionPercentage returns downloaded/total*100.
// ok is false when the total is unknown or zero; callers must treat that as unknown, not 0%.
func (p Progress) CompletionPercentage() (pct float64, ok bool) {
	if p.TotalBytes == nil || *p.TotalBytes == 0 {
		return 0, false
	}
	return float64(p.DownloadedBytes) / float64(*p.TotalBytes) * 100, true
}

// Uint64Ptr returns a pointer to v.
func Uint64Ptr(v uint64) *uint64 {
	return &v
}
