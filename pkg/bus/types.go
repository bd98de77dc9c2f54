// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bus implements the roundtable message bus: an in-process
// dispatcher of typed messages between handler instances,
// with targeted and broadcast delivery and request/response plus
// fire-and-forget semantics.
package bus

import "github.com/google/uuid"

// HandlerType identifies a class of handler by a constant UUID plus a
// human description, the bus equivalent of a type.
type HandlerType struct {
	ID   uuid.UUID
	Desc string
}

// HandlerInstance identifies one running instance of a HandlerType. The
// Discriminant is drawn from the Dispatcher's process-wide counter at
// registration time.
type HandlerInstance struct {
	Type         HandlerType
	Discriminant uint64
}

// MethodID identifies a method declaration site by a constant UUID, with a
// debug description. Two flavors exist conceptually (borrowed-args normal
// events vs owned-args background-task completions); both share this
// identity type, and the distinction shows up only in which
// Dispatcher/Runtime entry point carries the arguments (see runtime.go).
type MethodID struct {
	ID   uuid.UUID
	Desc string
}

// targetKind discriminates Target's three shapes.
type targetKind int

const (
	targetInstance targetKind = iota
	targetType
	targetAny
)

// Target selects which handler instance(s) a Request message is for.
type Target struct {
	kind     targetKind
	instance HandlerInstance
	typ      HandlerType
}

// ToInstance targets exactly one running handler instance.
func ToInstance(inst HandlerInstance) Target {
	return Target{kind: targetInstance, instance: inst}
}

// ToType targets every running instance of a handler type.
func ToType(t HandlerType) Target {
	return Target{kind: targetType, typ: t}
}

// ToAny targets every running handler instance regardless of type.
func ToAny() Target {
	return Target{kind: targetAny}
}

// Matches reports whether inst should receive a message sent to t.
func (t Target) Matches(inst HandlerInstance) bool {
	switch t.kind {
	case targetAny:
		return true
	case targetType:
		return t.typ.ID == inst.Type.ID
	case targetInstance:
		return t.instance.Type.ID == inst.Type.ID && t.instance.Discriminant == inst.Discriminant
	default:
		return false
	}
}

func (t Target) String() string {
	switch t.kind {
	case targetAny:
		return "Any"
	case targetType:
		return "Type(" + t.typ.Desc + ")"
	case targetInstance:
		return "Instance(" + t.instance.Type.Desc + ")"
	default:
		return "Unknown"
	}
}

// Message is one in-flight Request. Messages are built by the
// Dispatcher; handler code never constructs one directly.
type Message struct {
	ID        uint64
	Source    HandlerInstance
	Target    Target
	Method    MethodID
	Arguments any

	responder *responder
}
