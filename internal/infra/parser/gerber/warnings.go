package gerber

import (
	"fmt"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

// maxWarningsPerFile keeps one noisy file from flooding the report
const maxWarningsPerFile = 25

type warnings struct {
	file       string
	list       []design.Warning
	suppressed int
}

func newWarnings(file string) *warnings { return &warnings{file: file} }

func (w *warnings) add(format string, args ...any) {
	if len(w.list) >= maxWarningsPerFile {
		w.suppressed++
		return
	}
	w.list = append(w.list, design.Warning{File: w.file, Message: fmt.Sprintf(format, args...)})
}

func (w *warnings) all() []design.Warning {
	if w.suppressed == 0 {
		return w.list
	}
	return append(w.list, design.Warning{
		File:    w.file,
		Message: fmt.Sprintf("%d further warning(s) suppressed", w.suppressed),
	})
}
