package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors, one per error kind. Every typed error below matches its
// sentinel with errors.Is.
var (
	ErrAddressing          = errors.New("addressing error")
	ErrPortNotFound        = errors.New("port not found")
	ErrStateConsistency    = errors.New("port state inconsistent")
	ErrLockedOrDisabled    = errors.New("port locked or disabled")
	ErrTimeout             = errors.New("timed out waiting for pending operations")
	ErrSevereHardwareFault = errors.New("severe hardware fault")
	ErrMultiHost           = errors.New("multi-host execution failed")
	ErrConnectionPorts     = errors.New("connection not established")
)

// AddressFormatMessage is returned for every malformed resource address.
const AddressFormatMessage = "incorrect address format, expected <host>[:<second host>]:<matrix letter> " +
	"where matrix letter is one of A, B, Q, XY and a second host is only allowed for Q"

// AddressingError reports a malformed address or an address whose matrix
// letter does not match what the device exposes.
type AddressingError struct {
	Address string
	Reason  string
}

func (e *AddressingError) Error() string {
	return fmt.Sprintf("address %q: %s", e.Address, e.Reason)
}

func (e *AddressingError) Is(target error) bool { return target == ErrAddressing }

// PortLookupError reports an unknown logical port or sub-port.
type PortLookupError struct {
	Name string
}

func (e *PortLookupError) Error() string {
	return fmt.Sprintf("port %s not found", e.Name)
}

func (e *PortLookupError) Is(target error) bool { return target == ErrPortNotFound }

// ConsistencyKind classifies a StateConsistencyError
type ConsistencyKind string

const (
	ConsistencyDirectionSet     ConsistencyKind = "direction already set"
	ConsistencyAsymmetric       ConsistencyKind = "asymmetric connection"
	ConsistencyDifferentPorts   ConsistencyKind = "connected to different ports"
	ConsistencyDuplicateName    ConsistencyKind = "duplicate logical port"
	ConsistencyAlreadyConnected ConsistencyKind = "already connected"
)

// StateConsistencyError reports device data that contradicts itself or the
// requested operation.
type StateConsistencyError struct {
	Kind   ConsistencyKind
	Port   string
	Detail string
}

func (e *StateConsistencyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("port %s: %s", e.Port, e.Kind)
	}
	return fmt.Sprintf("port %s: %s: %s", e.Port, e.Kind, e.Detail)
}

func (e *StateConsistencyError) Is(target error) bool { return target == ErrStateConsistency }

// LockedOrDisabledError reports a port that cannot take a new connection.
type LockedOrDisabledError struct {
	Port     string
	Locked   bool
	Disabled bool
}

func (e *LockedOrDisabledError) Error() string {
	var states []string
	if e.Locked {
		states = append(states, "locked")
	}
	if e.Disabled {
		states = append(states, "disabled")
	}
	return fmt.Sprintf("port %s is %s", e.Port, strings.Join(states, " and "))
}

func (e *LockedOrDisabledError) Is(target error) bool { return target == ErrLockedOrDisabled }

// TimeoutError reports pending operations still queued after the deadline.
type TimeoutError struct {
	Host    string
	Pending []string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: operations %s still pending after %s",
		e.Host, strings.Join(e.Pending, ", "), e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// SevereHardwareFault reports a stuck command queue. The recovery sequence
// has already been run when this is returned; callers must not retry.
type SevereHardwareFault struct {
	Host        string
	Marker      string
	RecoveryErr error
}

func (e *SevereHardwareFault) Error() string {
	msg := fmt.Sprintf("%s: severe failure %q detected, recovery sequence executed", e.Host, e.Marker)
	if e.RecoveryErr != nil {
		msg += fmt.Sprintf(" (recovery failed: %v)", e.RecoveryErr)
	}
	return msg
}

func (e *SevereHardwareFault) Is(target error) bool { return target == ErrSevereHardwareFault }

func (e *SevereHardwareFault) Unwrap() error { return e.RecoveryErr }

// AggregateMultiHostError collects per-host failures of a parallel operation.
type AggregateMultiHostError struct {
	Failures map[string]error
}

func (e *AggregateMultiHostError) Hosts() []string {
	hosts := make([]string, 0, len(e.Failures))
	for h := range e.Failures {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func (e *AggregateMultiHostError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, h := range e.Hosts() {
		parts = append(parts, fmt.Sprintf("%s: %v", h, e.Failures[h]))
	}
	return fmt.Sprintf("%d host(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *AggregateMultiHostError) Is(target error) bool { return target == ErrMultiHost }

func (e *AggregateMultiHostError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, h := range e.Hosts() {
		errs = append(errs, e.Failures[h])
	}
	return errs
}

// ConnectionPortsError reports a connection that did not reach the requested
// state after the device confirmed the command.
type ConnectionPortsError struct {
	Op      string
	Src     string
	Dst     string
	Timeout time.Duration
	Cause   error
}

func (e *ConnectionPortsError) Error() string {
	op := e.Op
	if op == "" {
		op = "connect"
	}
	msg := fmt.Sprintf("cannot %s port %s and port %s during %s", op, e.Src, e.Dst, e.Timeout)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConnectionPortsError) Is(target error) bool { return target == ErrConnectionPorts }

func (e *ConnectionPortsError) Unwrap() error { return e.Cause }

// CommandError reports a command the device answered with an error message.
type CommandError struct {
	Host    string
	Command string
	Output  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: command %q failed: %s", e.Host, e.Command, e.Output)
}
