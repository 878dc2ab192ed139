package chordtest

import (
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// StackTrace is a list of frames, innermost first, optionally continued by the stack of
// whatever caused it to exist - for a task, the stack that spawned it.
//
// When a task fails, its [TaskError] carries a StackTrace whose Frames are the task's own
// frames (where it broke), and whose Parent chain holds the spawn sites, one goroutine per
// link, back to the test body.
type StackTrace struct {
	Frames []StackFrame
	Parent *StackTrace
}

type StackFrame struct {
	Function string
	File     string
	Line     int
}

// GetStackTrace returns the stack of the calling goroutine, skipping the given number of
// frames above the caller of GetStackTrace.
func GetStackTrace(parent *StackTrace, skip uint) StackTrace {
	frames := getFrames(skip + 1) // skip the additional frame introduced by GetStackTrace
	return StackTrace{Frames: frames, Parent: parent}
}

// Depth returns the number of links in the Parent chain, including st itself.
func (st StackTrace) Depth() int {
	n := 1
	for p := st.Parent; p != nil; p = p.Parent {
		n += 1
	}
	return n
}

// AllFrames flattens the Parent chain into one list, in the order String prints them.
func (st StackTrace) AllFrames() []StackFrame {
	var out []StackFrame
	for {
		out = append(out, st.Frames...)
		if st.Parent == nil {
			return out
		}
		st = *st.Parent
	}
}

func (st StackTrace) String() string {
	var buf []byte

	for {
		if len(st.Frames) == 0 {
			buf = append(buf, "<empty stack>\n"...)
		} else {
			for _, f := range st.Frames {
				var function, functionTail, file, fileLineSep, line string

				if f.Function == "" {
					function = "<unknown function>"
				} else {
					function = f.Function
					functionTail = "(...)"
				}

				if f.File == "" {
					file = "<unknown file>"
				} else {
					file = f.File
					if f.Line != 0 {
						fileLineSep = ":"
						line = strconv.Itoa(f.Line)
					}
				}

				buf = append(buf, function...)
				buf = append(buf, functionTail...)
				buf = append(buf, "\n\t"...)
				buf = append(buf, file...)
				buf = append(buf, fileLineSep...)
				buf = append(buf, line...)
				buf = append(buf, byte('\n'))
			}
		}

		if st.Parent == nil {
			break
		}

		buf = append(buf, "spawned by:\n"...)
		st = *st.Parent
	}

	return string(buf)
}

var pcBufPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, 128)
		return &buf
	},
}

func putPCBuffer(buf *[]uintptr) {
	if len(*buf) < 1024 {
		pcBufPool.Put(buf)
	}
}

func getFrames(skip uint) []StackFrame {
	skip += 2 // skip the frame introduced by this function and runtime.Callers

	pcBuf := pcBufPool.Get().(*[]uintptr)
	defer putPCBuffer(pcBuf)
	if len(*pcBuf) == 0 {
		panic("internal error: len(*pcBuf) == 0")
	}

	// read program counters into the buffer, repeating until buffer is big enough.
	var pc []uintptr
	for {
		n := runtime.Callers(0, *pcBuf)
		if n == 0 {
			panic("runtime.Callers(0, ...) returned zero")
		}

		if n < len(*pcBuf) {
			pc = (*pcBuf)[:n]
			break
		} else {
			*pcBuf = make([]uintptr, 2*len(*pcBuf))
		}
	}

	frames := framesFromPCs(pc)
	if uint(len(frames)) <= skip {
		return nil
	}
	return frames[skip:]
}

func framesFromPCs(pc []uintptr) []StackFrame {
	if len(pc) == 0 {
		return nil
	}

	framesIter := runtime.CallersFrames(pc)
	var frames []StackFrame
	more := true
	for more {
		var frame runtime.Frame
		frame, more = framesIter.Next()

		frames = append(frames, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
	}

	return frames
}

// stackTracer is implemented by errors from github.com/pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// errorFrames returns the innermost recorded stack in err's chain, if any.
//
// Only the deepest stack is useful: wrapping with errors.Wrap records another stack at the
// wrap site, which is always an ancestor of the original.
func errorFrames(err error) []StackFrame {
	var found errors.StackTrace
	for err != nil {
		if st, ok := err.(stackTracer); ok {
			found = st.StackTrace()
		}
		err = errors.Unwrap(err)
	}

	if len(found) == 0 {
		return nil
	}

	pcs := make([]uintptr, len(found))
	for i, f := range found {
		pcs[i] = uintptr(f) // already a return address, as from runtime.Callers
	}
	return framesFromPCs(pcs)
}

// funcFrame describes fn by its entry point. It stands in for a stack where there was none,
// i.e. a task that returned a plain error.
func funcFrame(fn any) StackFrame {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return StackFrame{}
	}

	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return StackFrame{}
	}

	file, line := f.FileLine(f.Entry())
	return StackFrame{Function: f.Name(), File: file, Line: line}
}

// afterUnwind drops the frames introduced by unwinding, i.e. everything up to and including
// runtime.gopanic (or runtime.Goexit), when called from a deferred function. Runtime frames
// right below that (runtime.sigpanic and friends, for faults) are dropped too, so the result
// starts where the failing code was.
func afterUnwind(frames []StackFrame) []StackFrame {
	idx := slices.IndexFunc(frames, func(f StackFrame) bool {
		return f.Function == "runtime.gopanic" || f.Function == "runtime.Goexit"
	})
	if idx == -1 {
		return frames
	}

	frames = frames[idx+1:]
	for len(frames) > 0 && strings.HasPrefix(frames[0].Function, "runtime.") {
		frames = frames[1:]
	}
	return frames
}

func funcName(fn any) string {
	return runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
}

// pkgPath is the import path of this package, taken from the name of one of its functions.
var pkgPath = func() string {
	name := funcName(getFrames)
	return name[:strings.LastIndex(name, ".")]
}()
