// errors.go: structured error definitions for the module host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	stderrors "errors"
	"strings"

	"github.com/agilira/go-errors"
)

// Error codes for the module host
const (
	// Lifecycle errors (1000-1099)
	ErrCodeInvalidDescriptor    = "MODULE_1001"
	ErrCodeDuplicateModule      = "MODULE_1002"
	ErrCodeCyclicDependency     = "MODULE_1003"
	ErrCodeUnmetDependency      = "MODULE_1004"
	ErrCodeContractViolation    = "MODULE_1005"
	ErrCodeLoadFailure          = "MODULE_1006"
	ErrCodeModuleInUse          = "MODULE_1007"
	ErrCodeModuleNotFound       = "MODULE_1008"
	ErrCodeInvalidModuleState   = "MODULE_1009"
	ErrCodeResourceRegistration = "MODULE_1010"
	ErrCodeHookFailed           = "MODULE_1011"
	ErrCodeUnloadFailure        = "MODULE_1012"

	// Discovery errors (1100-1199)
	ErrCodeDiscoveryError = "DISCOVERY_1101"
	ErrCodeManifestParse  = "DISCOVERY_1102"

	// Configuration errors (1700-1799)
	ErrCodeConfigNotFound        = "CONFIG_1701"
	ErrCodeConfigParseError      = "CONFIG_1702"
	ErrCodeConfigValidationError = "CONFIG_1703"
	ErrCodeConfigWatcherError    = "CONFIG_1704"
	ErrCodeConfigFileError       = "CONFIG_1706"

	// Admin errors (2000-2099)
	ErrCodeAdminError = "ADMIN_2001"
)

// Lifecycle error constructors

func NewInvalidDescriptorError(reason string, metadata map[string]any) *errors.Error {
	return errors.New(ErrCodeInvalidDescriptor, "Invalid module descriptor").
		WithUserMessage("Module metadata is missing required fields or is malformed").
		WithContext("reason", reason).
		WithContext("module_id", metadata["id"]).
		WithSeverity("error")
}

func NewDuplicateModuleError(id string) *errors.Error {
	return errors.New(ErrCodeDuplicateModule, "Duplicate module").
		WithUserMessage("A module with this id is already loaded").
		WithContext("module_id", id).
		WithSeverity("error")
}

// NewCyclicDependencyError carries the ordered cycle path, first and last element equal.
func NewCyclicDependencyError(path []string) *errors.Error {
	cycle := make([]string, len(path))
	copy(cycle, path)
	return errors.New(ErrCodeCyclicDependency, "Cyclic module dependency").
		WithUserMessage("Modules form a dependency cycle: "+strings.Join(cycle, " -> ")).
		WithContext("cycle", cycle).
		WithSeverity("error")
}

// NewUnmetDependencyError reports a dependency that is absent, or present
// but failed to enable (cause set).
func NewUnmetDependencyError(id, dependency string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeUnmetDependency, "Unmet module dependency").
		WithUserMessage("Module depends on a module that is not loaded").
		WithContext("module_id", id).
		WithContext("dependency", dependency).
		WithSeverity("error")
}

func NewContractViolationError(id, entryPoint string, got any) *errors.Error {
	return errors.New(ErrCodeContractViolation, "Entry point does not satisfy the module contract").
		WithUserMessage("The module entry point must produce a value implementing Module").
		WithContext("module_id", id).
		WithContext("entry_point", entryPoint).
		WithContext("type", typeName(got)).
		WithSeverity("error")
}

func NewLoadFailureError(id, phase string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeLoadFailure, "Module load failed").
		WithUserMessage("The module could not be loaded").
		WithContext("module_id", id).
		WithContext("phase", phase).
		WithSeverity("error")
}

func NewModuleInUseError(id string, dependents []string) *errors.Error {
	deps := make([]string, len(dependents))
	copy(deps, dependents)
	return errors.New(ErrCodeModuleInUse, "Module is in use").
		WithUserMessage("Other modules depend on this module").
		WithContext("module_id", id).
		WithContext("dependents", deps).
		WithSeverity("warning")
}

func NewModuleNotFoundError(id string) *errors.Error {
	return errors.New(ErrCodeModuleNotFound, "Module not found").
		WithUserMessage("No loaded module has this id").
		WithContext("module_id", id).
		WithSeverity("error")
}

func NewInvalidModuleStateError(id string, state, expected ModuleState) *errors.Error {
	return errors.New(ErrCodeInvalidModuleState, "Invalid module state").
		WithUserMessage("The operation is not allowed in the module's current state").
		WithContext("module_id", id).
		WithContext("state", state.String()).
		WithContext("expected", expected.String()).
		WithSeverity("warning")
}

func NewResourceRegistrationError(id, resource string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeResourceRegistration, "Resource registration failed").
		WithUserMessage("Resources can only be registered while the module is enabling or enabled").
		WithContext("module_id", id).
		WithContext("resource", resource).
		WithSeverity("error")
}

func NewHookFailedError(id, hook string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeHookFailed, "Module hook failed").
		WithUserMessage("The module reported an error from its "+hook+" hook").
		WithContext("module_id", id).
		WithContext("hook", hook).
		WithSeverity("error")
}

func NewUnloadFailureError(id, phase string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeUnloadFailure, "Module unload failed").
		WithUserMessage("The module could not be unloaded and was kept").
		WithContext("module_id", id).
		WithContext("phase", phase).
		WithSeverity("error")
}

// Discovery error constructors

func NewDiscoveryError(message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeDiscoveryError, message).
		WithUserMessage("Module discovery failed").
		WithSeverity("error")
}

func NewManifestParseError(path string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeManifestParse, "Failed to parse module manifest").
		WithUserMessage("The module manifest is not valid YAML, JSON or TOML").
		WithContext("path", path).
		WithSeverity("error")
}

// Configuration error constructors

func NewConfigNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The specified configuration file does not exist").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeConfigParseError, "Failed to parse configuration").
		WithUserMessage("The configuration file contains invalid syntax").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeConfigValidationError, message).
		WithUserMessage("The configuration contains invalid values").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeConfigWatcherError, message).
		WithUserMessage("The file watcher encountered an error").
		WithSeverity("error").
		AsRetryable()
}

func NewConfigFileError(path, message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeConfigFileError, message).
		WithUserMessage("A file operation failed").
		WithContext("path", path).
		WithSeverity("error")
}

func NewAdminError(message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeAdminError, message).
		WithUserMessage("The admin request failed").
		WithSeverity("error")
}

func wrapOrNew(cause error, code errors.ErrorCode, message string) *errors.Error {
	if cause == nil {
		return errors.New(code, message)
	}
	return errors.Wrap(cause, code, message)
}

// HasErrorCode reports whether err, or any error in its cause chain, carries code.
func HasErrorCode(err error, code errors.ErrorCode) bool {
	for err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// ErrorCodeOf returns the code of the outermost structured error in err.
func ErrorCodeOf(err error) errors.ErrorCode {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// CyclePath extracts the cycle carried by a CyclicDependency error.
func CyclePath(err error) ([]string, bool) {
	for err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Code == ErrCodeCyclicDependency {
			path, ok := e.Context["cycle"].([]string)
			if !ok {
				return nil, false
			}
			out := make([]string, len(path))
			copy(out, path)
			return out, true
		}
		err = stderrors.Unwrap(err)
	}
	return nil, false
}
