package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const Clear = "\033[2K\r"

// ProgressBar tracks files of a multi-file run. It is safe for concurrent use.
type ProgressBar struct {
	w           io.Writer
	total       int
	current     int
	failed      int
	startTime   time.Time
	description string
	mu          sync.Mutex
	width       int
}

func NewProgressBar(w io.Writer, total int, description string) *ProgressBar {
	return &ProgressBar{
		w:           w,
		total:       total,
		startTime:   time.Now(),
		description: description,
		width:       40,
	}
}

// Done records one finished file; a non-nil err counts it as failed.
func (pb *ProgressBar) Done(path string, err error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
	if err != nil {
		pb.failed++
		fmt.Fprint(pb.w, Clear)
		fmt.Fprintf(pb.w, " %s❌ %s%s\n", Red, path, Reset)
	}
	pb.render()
}

func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	fmt.Fprint(pb.w, Clear)
	pb.render()
	fmt.Fprintln(pb.w)
}

func (pb *ProgressBar) render() {
	percent := 1.0
	if pb.total > 0 {
		percent = min(float64(pb.current)/float64(pb.total), 1.0)
	}

	filled := int(float64(pb.width) * percent)
	bar := strings.Repeat("=", pb.width)
	if filled < pb.width {
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(".", pb.width-filled-1)
	}

	elapsed := time.Since(pb.startTime)
	remaining := time.Duration(0)
	if rate := float64(pb.current) / elapsed.Seconds(); rate > 0 {
		remaining = time.Duration(float64(pb.total-pb.current)/rate) * time.Second
	}
	eta := fmt.Sprintf("%02dm%02ds", int(remaining.Minutes()), int(remaining.Seconds())%60)

	barColor := Cyan
	if percent >= 1.0 {
		barColor = Green
	}
	failColor := Green
	if pb.failed > 0 {
		failColor = Red
	}

	fmt.Fprintf(pb.w, "%s%s %s[%s]%s %.0f%% | %d/%d | ETA: %s | Failed: %s%d%s",
		Clear,
		pb.description,
		barColor, bar, Reset,
		percent*100,
		pb.current, pb.total,
		eta,
		failColor, pb.failed, Reset,
	)
}
