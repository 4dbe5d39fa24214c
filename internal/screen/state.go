// Package screen holds the scanner screen's state machine and the controller
// that drives it from user actions.
package screen

import (
	"github.com/example/card-scanner/internal/capture"
	"github.com/example/card-scanner/internal/interpreter"
)

// User-facing texts.
const (
	InitialMessage     = "Scan a Card to see\nContact info here"
	NotFoundMessage    = "No valid Business Card found, please try again!!"
	UnreachableMessage = "Could not reach the card service, please try again!!"
	NoCameraText       = "No Camera Found"
	UndefinedValue     = "Undefined"
)

// State is everything the screen renders from.
type State struct {
	Processing    bool               `json:"processing"`
	CardFound     bool               `json:"card_found"`
	ContactInfo   interpreter.Result `json:"contact_info"`
	StatusMessage string             `json:"status_message"`
	Camera        *capture.Device    `json:"camera,omitempty"`
	HasPermission bool               `json:"has_permission"`
}

// InitialState is the Idle state.
func InitialState() State {
	return State{StatusMessage: InitialMessage}
}

// Action is a state transition. The set is closed: only the types in this
// file implement it.
type Action interface {
	apply(State) State
}

// BeginProcessing enters Processing.
type BeginProcessing struct{}

// CardFound stores the extracted fields and leaves Processing.
type CardFound struct {
	Result interpreter.Result
}

// NotFound records the message to show and leaves Processing.
type NotFound struct {
	Message string
}

// EndProcessing leaves Processing without any other change.
type EndProcessing struct{}

// CameraChanged records the current device and permission.
type CameraChanged struct {
	Device        *capture.Device
	HasPermission bool
}

func (BeginProcessing) apply(s State) State {
	s.Processing = true
	return s
}

func (a CardFound) apply(s State) State {
	s.Processing = false
	s.CardFound = true
	s.ContactInfo = a.Result
	return s
}

func (a NotFound) apply(s State) State {
	s.Processing = false
	s.CardFound = false
	s.StatusMessage = a.Message
	if s.StatusMessage == "" {
		s.StatusMessage = NotFoundMessage
	}
	return s
}

func (EndProcessing) apply(s State) State {
	s.Processing = false
	return s
}

func (a CameraChanged) apply(s State) State {
	s.Camera = a.Device
	s.HasPermission = a.HasPermission
	return s
}

// Reduce applies a to s.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}
