package runner

import (
	"errors"
	"fmt"

	"github.com/notargets/vadd/device"
)

// Kind classifies a dispatch failure
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindResolution
	KindContext
	KindCompile
	KindAllocation
	KindTransfer
	KindArgumentBinding
	KindLaunch
	KindExecution
	KindRelease
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindInvalidInput:    "invalid input",
	KindResolution:      "resolution",
	KindContext:         "context",
	KindCompile:         "compile",
	KindAllocation:      "allocation",
	KindTransfer:        "transfer",
	KindArgumentBinding: "argument binding",
	KindLaunch:          "launch",
	KindExecution:       "execution",
	KindRelease:         "release",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ExitCode is the process exit status reported for a failure of this kind
func (k Kind) ExitCode() int {
	switch k {
	case KindInvalidInput:
		return 2
	case KindResolution:
		return 10
	case KindContext:
		return 11
	case KindCompile:
		return 12
	case KindAllocation:
		return 13
	case KindTransfer:
		return 14
	case KindArgumentBinding:
		return 15
	case KindLaunch:
		return 16
	case KindExecution:
		return 17
	case KindRelease:
		return 18
	default:
		return 1
	}
}

// Step names the pipeline stage where a failure occurred
type Step string

const (
	StepValidate Step = "validate"
	StepResolve  Step = "resolve"
	StepContext  Step = "create context"
	StepQueue    Step = "create queue"
	StepCompile  Step = "compile"
	StepAllocate Step = "allocate"
	StepUpload   Step = "upload"
	StepBind     Step = "bind arguments"
	StepLaunch   Step = "launch"
	StepWait     Step = "wait"
	StepDownload Step = "download"
	StepRelease  Step = "release"
)

// Error is a dispatch failure with its kind and step
type Error struct {
	Kind Kind
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error during %s: %v", e.Kind, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newError wraps err, taking the kind from its device sentinel when one is
// present. Errors already carrying a kind are returned unchanged.
func newError(step Step, fallback Kind, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	kind := classify(err)
	if kind == KindUnknown {
		kind = fallback
	}
	return &Error{Kind: kind, Step: step, Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, device.ErrNoPlatform), errors.Is(err, device.ErrNoDevice),
		errors.Is(err, device.ErrUnknownBackend):
		return KindResolution
	case errors.Is(err, device.ErrContextCreation), errors.Is(err, device.ErrQueueCreation):
		return KindContext
	case errors.Is(err, device.ErrCompile), errors.Is(err, device.ErrEntryPointNotFound):
		return KindCompile
	case errors.Is(err, device.ErrAllocation):
		return KindAllocation
	case errors.Is(err, device.ErrTransfer):
		return KindTransfer
	case errors.Is(err, device.ErrArgumentBinding):
		return KindArgumentBinding
	case errors.Is(err, device.ErrLaunch):
		return KindLaunch
	case errors.Is(err, device.ErrExecution):
		return KindExecution
	case errors.Is(err, device.ErrReleased), errors.Is(err, device.ErrResourceBusy):
		return KindRelease
	}
	return KindUnknown
}

// KindOf reports the kind of a dispatch error. Release failures joined onto
// a primary error do not change its kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return classify(err)
}

// StepOf reports the step of a dispatch error, or "" when unknown
func StepOf(err error) Step {
	var re *Error
	if errors.As(err, &re) {
		return re.Step
	}
	return ""
}

// InvalidInputError reports an input rejected before any device work
func InvalidInputError(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidInput, Step: StepValidate, Err: fmt.Errorf(format, args...)}
}
