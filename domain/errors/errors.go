// Package errors provides the error taxonomy of the plugin manager.
// All error types support errors.As(), and errors.Is() against the exported
// sentinels, so hosts can branch on a failure kind without string matching.
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/reglet-lua/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is implemented by error types that can convert themselves to a
// structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrMissingRequired   = stdErrors.New("missing required dependency")
	ErrVersionMismatch   = stdErrors.New("dependency version mismatch")
	ErrDependencyCycle   = stdErrors.New("dependency cycle")
	ErrSignatureMismatch = stdErrors.New("signature mismatch")
	ErrLossyConversion   = stdErrors.New("lossy conversion")
	ErrStaleReference    = stdErrors.New("stale reference")
	ErrUnsupportedType   = stdErrors.New("unsupported type")
	ErrDuplicateName     = stdErrors.New("duplicate name")
	ErrManagerRegistered = stdErrors.New("manager already registered")
	ErrManagerMissing    = stdErrors.New("manager not registered")
	ErrPluginLoaded      = stdErrors.New("plugin already loaded")
	ErrUnknownPlugin     = stdErrors.New("unknown plugin")
	ErrPluginNotReady    = stdErrors.New("plugin not ready")
	ErrUnknownRequest    = stdErrors.New("unknown request")
)

// ToErrorDetail converts a Go error to a structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// ConfigError reports a malformed manifest or version constraint. It is detected
// before any interpreter is created.
type ConfigError struct {
	Err    error
	Plugin string
	Field  string
}

func (e *ConfigError) Error() string {
	prefix := "invalid manifest"
	if e.Plugin != "" {
		prefix = fmt.Sprintf("invalid manifest for plugin %q", e.Plugin)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: field '%s': %v", prefix, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field, Plugin: e.Plugin}
}

// DependencyKind distinguishes dependency failures.
type DependencyKind string

const (
	MissingRequired DependencyKind = "missing_required"
	VersionMismatch DependencyKind = "version_mismatch"
	DependencyCycle DependencyKind = "cycle"
)

// DependencyError reports an unsatisfied dependency of Plugin.
type DependencyError struct {
	Kind       DependencyKind
	Plugin     string
	Dependency string
	Required   string
	Found      string
	Cycle      []string
}

func (e *DependencyError) Error() string {
	switch e.Kind {
	case MissingRequired:
		return fmt.Sprintf("plugin %q requires %q (%s), which is not loaded", e.Plugin, e.Dependency, e.Required)
	case VersionMismatch:
		return fmt.Sprintf("plugin %q requires %q %s, found %s", e.Plugin, e.Dependency, e.Required, e.Found)
	case DependencyCycle:
		return fmt.Sprintf("dependency cycle: %v", e.Cycle)
	default:
		return fmt.Sprintf("dependency error for plugin %q", e.Plugin)
	}
}

// Is matches the sentinel for the error's kind.
func (e *DependencyError) Is(target error) bool {
	switch e.Kind {
	case MissingRequired:
		return target == ErrMissingRequired
	case VersionMismatch:
		return target == ErrVersionMismatch
	case DependencyCycle:
		return target == ErrDependencyCycle
	}
	return false
}

// ToErrorDetail implements DetailedError.
func (e *DependencyError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "dependency",
		Code:    string(e.Kind),
		Plugin:  e.Plugin,
		Details: map[string]any{"dependency": e.Dependency, "required": e.Required, "found": e.Found},
	}
}

// ScriptError reports a parse or runtime failure inside the embedded engine.
// Message carries the engine's diagnostic text; Err, when set, is the Go error
// that caused it (a native function failure, a cancelled context).
// Panic is set when the engine itself panicked rather than the script raising
// an error; the VM is no longer trustworthy in that case.
type ScriptError struct {
	Err        error
	Plugin     string
	Phase      string
	Message    string
	StackTrace string
	Panic      bool
}

func (e *ScriptError) Error() string {
	where := "script"
	if e.Plugin != "" {
		where = fmt.Sprintf("plugin %q", e.Plugin)
	}
	if e.Phase != "" {
		return fmt.Sprintf("%s failed during %s: %s", where, e.Phase, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", where, e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ScriptError) ToErrorDetail() *entities.ErrorDetail {
	d := &entities.ErrorDetail{Message: e.Error(), Type: "script", Code: e.Phase, Plugin: e.Plugin}
	if e.Err != nil {
		d.Wrapped = ToErrorDetail(e.Err)
	}
	return d
}

// MarshalKind distinguishes boundary crossing failures.
type MarshalKind string

const (
	SignatureMismatch MarshalKind = "signature_mismatch"
	LossyConversion   MarshalKind = "lossy_conversion"
	StaleReference    MarshalKind = "stale_reference"
	UnsupportedType   MarshalKind = "unsupported_type"
)

// MarshalError reports a value that could not cross the native/script boundary.
// For signature mismatches, Position is the zero-based index of the first
// offending argument, or -1 for a result, and Expected/Received name the types
// found there.
type MarshalError struct {
	Kind     MarshalKind
	Function string
	Expected string
	Received string
	Message  string
	Position int
}

func (e *MarshalError) Error() string {
	switch e.Kind {
	case SignatureMismatch:
		if e.Position < 0 {
			return fmt.Sprintf("signature mismatch in result of %q: expected %s, received %s",
				e.Function, e.Expected, e.Received)
		}
		return fmt.Sprintf("signature mismatch calling %q: argument %d: expected %s, received %s",
			e.Function, e.Position+1, e.Expected, e.Received)
	case LossyConversion:
		if e.Message != "" {
			return fmt.Sprintf("lossy conversion from %s to %s: %s", e.Received, e.Expected, e.Message)
		}
		return fmt.Sprintf("lossy conversion from %s to %s", e.Received, e.Expected)
	case StaleReference:
		return fmt.Sprintf("stale reference: %s", e.Message)
	default:
		return fmt.Sprintf("unsupported type %s: %s", e.Received, e.Message)
	}
}

// Is matches the sentinel for the error's kind.
func (e *MarshalError) Is(target error) bool {
	switch e.Kind {
	case SignatureMismatch:
		return target == ErrSignatureMismatch
	case LossyConversion:
		return target == ErrLossyConversion
	case StaleReference:
		return target == ErrStaleReference
	case UnsupportedType:
		return target == ErrUnsupportedType
	}
	return false
}

// ToErrorDetail implements DetailedError.
func (e *MarshalError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "marshal", Code: string(e.Kind)}
}

// RegistryError reports a rejected registration.
type RegistryError struct {
	Name string
	What string
}

func (e *RegistryError) Error() string {
	what := e.What
	if what == "" {
		what = "function"
	}
	return fmt.Sprintf("%s %q already registered", what, e.Name)
}

// Is matches ErrDuplicateName.
func (e *RegistryError) Is(target error) bool {
	return target == ErrDuplicateName
}

// ToErrorDetail implements DetailedError.
func (e *RegistryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "registry", Code: "duplicate_name"}
}

// ManagerKind distinguishes manager registration failures.
type ManagerKind string

const (
	ManagerAlreadyRegistered ManagerKind = "already_registered"
	ManagerNotRegistered     ManagerKind = "not_registered"
	PluginAlreadyLoaded      ManagerKind = "already_loaded"
)

// ManagerError reports a violation of the manager/context contract.
type ManagerError struct {
	Kind   ManagerKind
	Plugin string
}

func (e *ManagerError) Error() string {
	switch e.Kind {
	case ManagerAlreadyRegistered:
		return "a manager is already registered in this context"
	case ManagerNotRegistered:
		return "manager is not registered with a context"
	case PluginAlreadyLoaded:
		return fmt.Sprintf("plugin %q is already loaded", e.Plugin)
	default:
		return "manager error"
	}
}

// Is matches the sentinel for the error's kind.
func (e *ManagerError) Is(target error) bool {
	switch e.Kind {
	case ManagerAlreadyRegistered:
		return target == ErrManagerRegistered
	case ManagerNotRegistered:
		return target == ErrManagerMissing
	case PluginAlreadyLoaded:
		return target == ErrPluginLoaded
	}
	return false
}

// ToErrorDetail implements DetailedError.
func (e *ManagerError) ToErrorDetail() *entities.ErrorDetail {
	return entities.NewErrorDetail("manager", e.Error()).
		WithCode(string(e.Kind)).
		WithPlugin(e.Plugin)
}

// DispatchKind distinguishes request dispatch failures that happen before the
// script runs.
type DispatchKind string

const (
	UnknownPlugin  DispatchKind = "unknown_plugin"
	NotReady       DispatchKind = "not_ready"
	UnknownRequest DispatchKind = "unknown_request"
)

// DispatchError reports a request that could not be routed to a script.
type DispatchError struct {
	Kind    DispatchKind
	Plugin  string
	Request string
	State   string
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case UnknownPlugin:
		return fmt.Sprintf("plugin %q is not loaded", e.Plugin)
	case NotReady:
		return fmt.Sprintf("plugin %q is %s, not ready", e.Plugin, e.State)
	case UnknownRequest:
		return fmt.Sprintf("plugin %q does not expose request %q", e.Plugin, e.Request)
	default:
		return "dispatch error"
	}
}

// Is matches the sentinel for the error's kind.
func (e *DispatchError) Is(target error) bool {
	switch e.Kind {
	case UnknownPlugin:
		return target == ErrUnknownPlugin
	case NotReady:
		return target == ErrPluginNotReady
	case UnknownRequest:
		return target == ErrUnknownRequest
	}
	return false
}

// ToErrorDetail implements DetailedError.
func (e *DispatchError) ToErrorDetail() *entities.ErrorDetail {
	d := entities.NewErrorDetail("dispatch", e.Error()).
		WithCode(string(e.Kind)).
		WithPlugin(e.Plugin)
	if e.Request != "" {
		d.WithDetails(map[string]any{"request": e.Request})
	}
	return d
}
