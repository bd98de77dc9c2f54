// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import "time"

// serverState is the server half of CS:Squirrel's transaction state
// machine.
type serverState int

const (
	stateResting serverState = iota
	stateRecvStart
	stateRecv
	stateRecvDone
	stateSendStart
	stateSend
	stateSendDone
)

func (s serverState) String() string {
	switch s {
	case stateResting:
		return "Resting"
	case stateRecvStart:
		return "RecvStart"
	case stateRecv:
		return "Recv"
	case stateRecvDone:
		return "RecvDone"
	case stateSendStart:
		return "SendStart"
	case stateSend:
		return "Send"
	case stateSendDone:
		return "SendDone"
	default:
		return "Unknown"
	}
}

// DefaultMaxTransactionTime bounds one entire transaction unless the
// caller overrides it.
const DefaultMaxTransactionTime = 30 * time.Second

// ServerConn is one peer's transaction state, server side. One ServerConn
// exists per remote UDP address; the caller (the UDP listener loop) looks
// one up or creates it on first contact and feeds it every packet that
// arrives from that address.
//
// At most one transaction is tracked at a time; a repeated packet never
// double-delivers a payload because every
// state's "already seen this" branch re-emits the prior outgoing packet
// verbatim instead of re-running the transition.
type ServerConn struct {
	state        serverState
	acceptedID   uint32 // id of the last incoming packet whose effect has been applied
	lastSent     uint32 // id of the last packet this side sent
	lastOutgoing Packet // the packet lastSent refers to, for idempotent replay

	uidGen             UidGen
	transactionStart   time.Time
	MaxTransactionTime time.Duration

	recvBuf []byte

	sendQueue  [][]byte // payloads queued for the next Rx-initiated transaction
	sendBuf    []byte   // payload currently streaming out
	sendOffset int
}

// NewServerConn constructs a resting connection. max, if zero, defaults to
// DefaultMaxTransactionTime.
func NewServerConn(max time.Duration) *ServerConn {
	if max <= 0 {
		max = DefaultMaxTransactionTime
	}
	return &ServerConn{MaxTransactionTime: max}
}

// Queue appends a payload to be delivered the next time the peer initiates
// a receive transaction (Cmd(Rx)). FIFO order.
func (c *ServerConn) Queue(payload []byte) {
	c.sendQueue = append(c.sendQueue, payload)
}

// State reports the connection's current state, for diagnostics/tests.
func (c *ServerConn) State() string { return c.state.String() }

// Handle advances the state machine on receipt of pkt, returning zero or
// more events for the driver to act on.
func (c *ServerConn) Handle(pkt Packet, now time.Time) []Event {
	active := c.state == stateRecvStart || c.state == stateRecv || c.state == stateSendStart || c.state == stateSend
	if active && now.Sub(c.transactionStart) > c.MaxTransactionTime {
		c.state = stateResting
		return []Event{TimedOutEvent{}}
	}

	switch c.state {
	case stateResting, stateRecvDone, stateSendDone:
		cmd, ok := pkt.(*Command)
		if !ok {
			return nil
		}
		switch cmd.Command {
		case CmdTx:
			c.acceptedID = cmd.Head.PacketID
			c.state = stateRecvStart
			c.transactionStart = now
			c.recvBuf = c.recvBuf[:0]
			return c.emitConfirm(cmd.Head.PacketID)
		case CmdRx:
			c.acceptedID = cmd.Head.PacketID
			c.state = stateSendStart
			c.transactionStart = now
			if len(c.sendQueue) > 0 {
				c.sendBuf = c.sendQueue[0]
				c.sendQueue = c.sendQueue[1:]
			} else {
				c.sendBuf = nil
			}
			c.sendOffset = 0
			return c.sendNextChunk(cmd.Head.PacketID)
		case CmdComplete:
			if c.state == stateRecvDone && cmd.Head.PacketID == c.acceptedID {
				return c.replay()
			}
		case CmdConfirm:
			if c.state == stateSendDone && cmd.Head.PacketID == c.acceptedID {
				return c.replay()
			}
		}
		return nil

	case stateRecvStart:
		switch v := pkt.(type) {
		case *Command:
			if v.Command == CmdTx && v.Head.PacketID == c.acceptedID {
				return c.replay()
			}
			return nil
		case *Frame:
			if v.Head.RespondingTo == c.lastSent {
				c.acceptedID = v.Head.PacketID
				c.recvBuf = append(c.recvBuf, v.Data...)
				c.state = stateRecv
				return c.emitConfirm(v.Head.PacketID)
			}
			return nil
		}
		return nil

	case stateRecv:
		switch v := pkt.(type) {
		case *Frame:
			if v.Head.PacketID == c.acceptedID {
				return c.replay()
			}
			if v.Head.RespondingTo == c.lastSent {
				c.acceptedID = v.Head.PacketID
				c.recvBuf = append(c.recvBuf, v.Data...)
				return c.emitConfirm(v.Head.PacketID)
			}
			return nil
		case *Command:
			if v.Command == CmdComplete && v.Head.RespondingTo == c.lastSent {
				c.acceptedID = v.Head.PacketID
				c.state = stateRecvDone
				delivered := append([]byte(nil), c.recvBuf...)
				confirm := c.emitConfirm(v.Head.PacketID)
				return append([]Event{ReceivedEvent{Data: delivered}}, confirm...)
			}
			return nil
		}
		return nil

	case stateSendStart, stateSend:
		v, ok := pkt.(*Command)
		if !ok || v.Command != CmdConfirm {
			return nil
		}
		if v.Head.PacketID == c.acceptedID {
			return c.replay()
		}
		if v.Head.RespondingTo == c.lastSent {
			c.acceptedID = v.Head.PacketID
			c.state = stateSend
			return c.sendNextChunk(v.Head.PacketID)
		}
		return nil
	}
	return nil
}

func (c *ServerConn) emitConfirm(respondingTo uint32) []Event {
	c.lastSent = c.uidGen.Next()
	pkt := NewCommand(c.lastSent, respondingTo, CmdConfirm)
	c.lastOutgoing = pkt
	return []Event{SendEvent{Packet: pkt}}
}

func (c *ServerConn) replay() []Event {
	if c.lastOutgoing == nil {
		return nil
	}
	return []Event{SendEvent{Packet: c.lastOutgoing}}
}

// sendNextChunk emits the next unsent slice of sendBuf as a Frame, or a
// Complete command once sendBuf is exhausted (including the degenerate
// case of an empty queued payload).
func (c *ServerConn) sendNextChunk(respondingTo uint32) []Event {
	remaining := len(c.sendBuf) - c.sendOffset
	if remaining <= 0 {
		c.state = stateSendDone
		c.lastSent = c.uidGen.Next()
		pkt := NewCommand(c.lastSent, respondingTo, CmdComplete)
		c.lastOutgoing = pkt
		return []Event{SendEvent{Packet: pkt}}
	}
	n := remaining
	if n > FrameMaxData {
		n = FrameMaxData
	}
	chunk := c.sendBuf[c.sendOffset : c.sendOffset+n]
	c.sendOffset += n
	c.lastSent = c.uidGen.Next()
	frame, err := NewFrame(c.lastSent, respondingTo, chunk)
	if err != nil {
		// n is clamped to FrameMaxData above; this cannot happen.
		panic(err)
	}
	c.lastOutgoing = frame
	return []Event{SendEvent{Packet: frame}}
}
