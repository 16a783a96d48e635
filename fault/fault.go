// Package fault holds the numeric error codes shared by the axis and its
// collaborators, and a small holder type each component embeds to latch its
// most recent error.
package fault

import "fmt"

// Code is a latched component error. Zero means no error.
type Code uint32

func (c Code) Error() string {
	if s, ok := names[c]; ok {
		return fmt.Sprintf("%s (0x%x)", s, uint32(c))
	}
	return fmt.Sprintf("error 0x%x", uint32(c))
}

func (c Code) String() string {
	return c.Error()
}

// Trajectory errors.
const (
	ErrTrajSolver Code = 0x14300 + iota
	ErrTrajSolverInvalidInput
	ErrTrajSolverDuration
	ErrTrajSolverPositionLimits
	ErrTrajSolverExecutionTime
	ErrTrajSolverSynchronization
	ErrTrajNotEnabled
	ErrTrajInvalidMode
	ErrTrajLimitsInvalid
)

// Axis errors.
const (
	ErrAxisNotEnabled Code = 0x14100 + iota
	ErrAxisBusy
	ErrAxisIndexOutOfRange
	ErrAxisTransformNotCompiled
	ErrAxisBufferTooSmall
	ErrAxisFunctionNotSupported
	ErrAxisCommandNotAllowedWhenEnabled
	ErrAxisHardwareStatusNotOK
	ErrAxisDataSourceInvalid
	ErrAxisCycleTimeInvalid
)

// Monitor errors.
const (
	ErrMonHardLimitForward Code = 0x14c00 + iota
	ErrMonHardLimitBackward
	ErrMonSoftLimitForward
	ErrMonSoftLimitBackward
	ErrMonExternalInterlock
)

// Encoder, drive, controller and transform errors.
const (
	ErrEncReadFailed Code = 0x14400 + iota
	ErrEncScaleDenomZero
)

const (
	ErrDrvHardwareFault Code = 0x14600 + iota
	ErrDrvEnableTimeout
	ErrDrvWriteFailed
)

const (
	ErrCntrlOutputSaturated Code = 0x14500 + iota
)

const (
	ErrTransformCompile Code = 0x14700 + iota
	ErrTransformEvaluate
)

// Sequencer errors.
const (
	ErrSeqCommandNotSupported Code = 0x14d00 + iota
	ErrSeqTargetOutsideSoftLimits
	ErrSeqHomingFailed
)

var names = map[Code]string{
	ErrTrajSolver:                       "trajectory solver error",
	ErrTrajSolverInvalidInput:           "trajectory solver invalid input",
	ErrTrajSolverDuration:               "trajectory duration out of range",
	ErrTrajSolverPositionLimits:         "trajectory exceeds position limits",
	ErrTrajSolverExecutionTime:          "trajectory execution time calculation failed",
	ErrTrajSolverSynchronization:        "trajectory synchronization calculation failed",
	ErrTrajNotEnabled:                   "trajectory not enabled",
	ErrTrajInvalidMode:                  "trajectory mode invalid",
	ErrTrajLimitsInvalid:                "trajectory limits invalid",
	ErrAxisNotEnabled:                   "axis not enabled",
	ErrAxisBusy:                         "axis busy",
	ErrAxisIndexOutOfRange:              "axis index out of range",
	ErrAxisTransformNotCompiled:         "command transform not compiled",
	ErrAxisBufferTooSmall:               "diagnostic buffer too small",
	ErrAxisFunctionNotSupported:         "function not supported",
	ErrAxisCommandNotAllowedWhenEnabled: "command not allowed when enabled",
	ErrAxisHardwareStatusNotOK:          "hardware status not ok",
	ErrAxisDataSourceInvalid:            "data source invalid",
	ErrAxisCycleTimeInvalid:             "cycle time invalid",
	ErrMonHardLimitForward:              "hard limit forward",
	ErrMonHardLimitBackward:             "hard limit backward",
	ErrMonSoftLimitForward:              "soft limit forward",
	ErrMonSoftLimitBackward:             "soft limit backward",
	ErrMonExternalInterlock:             "external interlock",
	ErrEncReadFailed:                    "encoder read failed",
	ErrEncScaleDenomZero:                "encoder scale denominator zero",
	ErrDrvHardwareFault:                 "drive hardware fault",
	ErrDrvEnableTimeout:                 "drive enable timeout",
	ErrDrvWriteFailed:                   "drive write failed",
	ErrCntrlOutputSaturated:             "controller output saturated",
	ErrTransformCompile:                 "transform compile failed",
	ErrTransformEvaluate:                "transform evaluation failed",
	ErrSeqCommandNotSupported:           "command not supported",
	ErrSeqTargetOutsideSoftLimits:       "target outside soft limits",
	ErrSeqHomingFailed:                  "homing failed",
}

// Source is anything that reports a latched error code.
type Source interface {
	ErrorID() Code
}

// Resettable clears its latched error.
type Resettable interface {
	ErrorReset()
}

// Holder latches the most recent error. The zero value holds no error.
type Holder struct {
	code Code
}

// SetError latches code and returns it as an error, or nil for zero.
func (h *Holder) SetError(code Code) error {
	h.code = code
	if code == 0 {
		return nil
	}
	return code
}

func (h *Holder) ErrorID() Code {
	return h.code
}

func (h *Holder) HasError() bool {
	return h.code != 0
}

func (h *Holder) ErrorReset() {
	h.code = 0
}

// First returns the first non-zero code reported by sources, in order.
func First(sources ...Source) Code {
	for _, s := range sources {
		if s == nil {
			continue
		}
		if c := s.ErrorID(); c != 0 {
			return c
		}
	}
	return 0
}
