package commands

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// Progress tracks a long-running command
type Progress interface {
	Add(int) error
	Close()
}

type noopProgress struct{}

func (noopProgress) Add(int) error { return nil }
func (noopProgress) Close()        {}

type barProgress struct {
	bar *progressbar.ProgressBar
	w   io.Writer
}

func (p *barProgress) Add(n int) error {
	return p.bar.Add(n)
}

func (p *barProgress) Close() {
	_ = p.bar.Finish()
	fmt.Fprint(p.w, "\r\033[K")
}

// NewProgress returns a progress bar over total steps drawn on w, or a no-op tracker when
// enabled is false
func NewProgress(enabled bool, w io.Writer, total int, description string) Progress {
	if !enabled {
		return noopProgress{}
	}
	return &barProgress{
		w: w,
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			})),
	}
}
