package common

import "errors"

var ErrModuleShutdown = errors.New("module shut down")

// ShutdownView reports whether a module has been placed into emergency
// shutdown by governance.
type ShutdownView interface {
	IsShutdown(module string) bool
}

// Guard rejects the operation when the module is shut down. A nil view or
// empty module name disables the check.
func Guard(v ShutdownView, module string) error {
	if v == nil || module == "" {
		return nil
	}
	if v.IsShutdown(module) {
		return ErrModuleShutdown
	}
	return nil
}
