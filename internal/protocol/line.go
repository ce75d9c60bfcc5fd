// internal/protocol/line.go
package protocol

import "fmt"

// Kind is the outbound line category.
type Kind int

const (
	KindData Kind = iota
	KindInfo
	KindWarn
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindInfo:
		return "info"
	case KindWarn:
		return "warn"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

func (k Kind) prefix() string {
	switch k {
	case KindInfo:
		return "[INFO] "
	case KindWarn:
		return "[WARN] "
	case KindError:
		return "[ERROR] "
	default:
		return ""
	}
}

// Line is one outbound event. Text never contains a newline.
type Line struct {
	Kind Kind
	Text string
}

// String renders the line without the trailing newline.
func (l Line) String() string {
	return l.Kind.prefix() + l.Text
}

func Data(text string) Line { return Line{Kind: KindData, Text: text} }

func Info(format string, args ...any) Line {
	return Line{Kind: KindInfo, Text: fmt.Sprintf(format, args...)}
}

func Warn(format string, args ...any) Line {
	return Line{Kind: KindWarn, Text: fmt.Sprintf(format, args...)}
}

func Error(format string, args ...any) Line {
	return Line{Kind: KindError, Text: fmt.Sprintf(format, args...)}
}

// Emitter delivers lines to the host.
type Emitter interface {
	Emit(l Line)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Line)

func (f EmitterFunc) Emit(l Line) { f(l) }

// Recorder collects lines in memory.
type Recorder struct {
	Lines []Line
}

func (r *Recorder) Emit(l Line) { r.Lines = append(r.Lines, l) }

// Kinds returns only the lines of kind k.
func (r *Recorder) Kinds(k Kind) []Line {
	var out []Line
	for _, l := range r.Lines {
		if l.Kind == k {
			out = append(out, l)
		}
	}
	return out
}

// Reset drops recorded lines.
func (r *Recorder) Reset() { r.Lines = nil }
