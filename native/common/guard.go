package common

import "errors"

// ErrModulePaused is returned when the escrow or deed module has been paused
// by configuration.
var ErrModulePaused = errors.New("module paused")

// PauseView reports which modules are currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutations on a paused module such as escrow or deed. A nil
// view or an empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
