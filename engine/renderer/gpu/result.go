package gpu

import "fmt"

// Result is a driver status code. Non-success results are also errors so a
// driver can return them directly and callers can match them with errors.Is.
type Result int32

const (
	Success Result = iota
	NotReady
	Timeout
	Incomplete
	Suboptimal
	ErrorOutOfHostMemory
	ErrorOutOfDeviceMemory
	ErrorInitializationFailed
	ErrorDeviceLost
	ErrorMemoryMapFailed
	ErrorLayerNotPresent
	ErrorExtensionNotPresent
	ErrorFeatureNotPresent
	ErrorIncompatibleDriver
	ErrorTooManyObjects
	ErrorFormatNotSupported
	ErrorSurfaceLost
	ErrorNativeWindowInUse
	ErrorOutOfDate
	ErrorOutOfPoolMemory
	ErrorInvalidHandle
	ErrorUnknown
)

var resultNames = map[Result]string{
	Success:                   "SUCCESS",
	NotReady:                  "NOT_READY",
	Timeout:                   "TIMEOUT",
	Incomplete:                "INCOMPLETE",
	Suboptimal:                "SUBOPTIMAL",
	ErrorOutOfHostMemory:      "ERROR_OUT_OF_HOST_MEMORY",
	ErrorOutOfDeviceMemory:    "ERROR_OUT_OF_DEVICE_MEMORY",
	ErrorInitializationFailed: "ERROR_INITIALIZATION_FAILED",
	ErrorDeviceLost:           "ERROR_DEVICE_LOST",
	ErrorMemoryMapFailed:      "ERROR_MEMORY_MAP_FAILED",
	ErrorLayerNotPresent:      "ERROR_LAYER_NOT_PRESENT",
	ErrorExtensionNotPresent:  "ERROR_EXTENSION_NOT_PRESENT",
	ErrorFeatureNotPresent:    "ERROR_FEATURE_NOT_PRESENT",
	ErrorIncompatibleDriver:   "ERROR_INCOMPATIBLE_DRIVER",
	ErrorTooManyObjects:       "ERROR_TOO_MANY_OBJECTS",
	ErrorFormatNotSupported:   "ERROR_FORMAT_NOT_SUPPORTED",
	ErrorSurfaceLost:          "ERROR_SURFACE_LOST",
	ErrorNativeWindowInUse:    "ERROR_NATIVE_WINDOW_IN_USE",
	ErrorOutOfDate:            "ERROR_OUT_OF_DATE",
	ErrorOutOfPoolMemory:      "ERROR_OUT_OF_POOL_MEMORY",
	ErrorInvalidHandle:        "ERROR_INVALID_HANDLE",
	ErrorUnknown:              "ERROR_UNKNOWN",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("RESULT(%d)", int32(r))
}

func (r Result) Error() string {
	return r.String()
}

// IsSuccess reports whether r allows the caller to continue. Suboptimal still
// delivers a usable image.
func (r Result) IsSuccess() bool {
	return r == Success || r == Suboptimal || r == Incomplete
}

// APIError wraps a failed driver call.
type APIError struct {
	Op     string
	Result Result
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Result)
}

func (e *APIError) Unwrap() error {
	return e.Result
}

// Check returns nil for Success and an *APIError otherwise.
func Check(op string, r Result) error {
	if r == Success {
		return nil
	}
	return &APIError{Op: op, Result: r}
}
