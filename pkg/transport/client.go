// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import "time"

// clientState is the client half of CS:Squirrel, the full symmetric
// mirror of ServerConn: a station both uploads readings (Tx) and pulls
// queued replies such as ChannelMappings (Rx).
type clientState int

const (
	stateCResting clientState = iota
	stateCSending
	stateCSendingDone
	stateCReceiving
	stateCReceivingDone
)

func (s clientState) String() string {
	switch s {
	case stateCResting:
		return "Resting"
	case stateCSending:
		return "Sending"
	case stateCSendingDone:
		return "SendingDone"
	case stateCReceiving:
		return "Receiving"
	case stateCReceivingDone:
		return "ReceivingDone"
	default:
		return "Unknown"
	}
}

// ClientConn is the client half of one transaction's state: one per
// connection to a server (a field station normally has exactly one).
type ClientConn struct {
	state        clientState
	acceptedID   uint32
	lastSent     uint32
	lastOutgoing Packet

	uidGen             UidGen
	transactionStart   time.Time
	MaxTransactionTime time.Duration

	sendBuf    []byte
	sendOffset int

	recvBuf []byte
}

// NewClientConn constructs a resting client connection.
func NewClientConn(max time.Duration) *ClientConn {
	if max <= 0 {
		max = DefaultMaxTransactionTime
	}
	return &ClientConn{MaxTransactionTime: max}
}

// State reports the connection's current state, for diagnostics/tests.
func (c *ClientConn) State() string { return c.state.String() }

// Busy reports whether a transaction is already in flight; StartSend and
// StartReceive must not be called while Busy is true.
func (c *ClientConn) Busy() bool {
	return c.state != stateCResting
}

// StartSend begins an upload transaction: Cmd(Tx) followed by data,
// chunked across Frames, followed by Cmd(Complete). Returns the initial
// Cmd(Tx) to send.
func (c *ClientConn) StartSend(data []byte, now time.Time) []Event {
	c.state = stateCSending
	c.transactionStart = now
	c.sendBuf = data
	c.sendOffset = 0
	c.lastSent = c.uidGen.Next()
	pkt := NewCommand(c.lastSent, 0, CmdTx)
	c.lastOutgoing = pkt
	return []Event{SendEvent{Packet: pkt}}
}

// StartReceive begins a download transaction: Cmd(Rx), expecting either an
// immediate Cmd(Complete) (nothing queued server-side) or the first Frame
// of a stream.
func (c *ClientConn) StartReceive(now time.Time) []Event {
	c.state = stateCReceiving
	c.transactionStart = now
	c.recvBuf = c.recvBuf[:0]
	c.lastSent = c.uidGen.Next()
	pkt := NewCommand(c.lastSent, 0, CmdRx)
	c.lastOutgoing = pkt
	return []Event{SendEvent{Packet: pkt}}
}

// Handle advances the state machine on receipt of pkt.
func (c *ClientConn) Handle(pkt Packet, now time.Time) []Event {
	if (c.state == stateCSending || c.state == stateCReceiving) && now.Sub(c.transactionStart) > c.MaxTransactionTime {
		c.state = stateCResting
		return []Event{TimedOutEvent{}}
	}

	switch c.state {
	case stateCResting:
		return nil

	case stateCSending:
		cmd, ok := pkt.(*Command)
		if !ok || cmd.Command != CmdConfirm {
			return nil
		}
		if cmd.Head.PacketID == c.acceptedID {
			return c.replay()
		}
		if cmd.Head.RespondingTo != c.lastSent {
			return nil
		}
		c.acceptedID = cmd.Head.PacketID
		return c.sendNextChunk(cmd.Head.PacketID)

	case stateCSendingDone:
		cmd, ok := pkt.(*Command)
		if !ok || cmd.Command != CmdConfirm {
			return nil
		}
		if cmd.Head.PacketID == c.acceptedID {
			// a repeat of the Confirm that led us to send Complete
			return c.replay()
		}
		if cmd.Head.RespondingTo == c.lastSent {
			// the final Confirm acking our Complete: transaction done.
			c.state = stateCResting
			return nil
		}
		return nil

	case stateCReceiving:
		switch v := pkt.(type) {
		case *Command:
			if v.Command == CmdComplete && v.Head.RespondingTo == c.lastSent {
				c.acceptedID = v.Head.PacketID
				c.state = stateCReceivingDone
				delivered := append([]byte(nil), c.recvBuf...)
				confirm := c.emitConfirm(v.Head.PacketID)
				c.state = stateCResting
				return append([]Event{ReceivedEvent{Data: delivered}}, confirm...)
			}
			return nil
		case *Frame:
			if v.Head.PacketID == c.acceptedID {
				return c.replay()
			}
			if v.Head.RespondingTo != c.lastSent {
				return nil
			}
			c.acceptedID = v.Head.PacketID
			c.recvBuf = append(c.recvBuf, v.Data...)
			return c.emitConfirm(v.Head.PacketID)
		}
		return nil

	case stateCReceivingDone:
		if cmd, ok := pkt.(*Command); ok && cmd.Command == CmdComplete && cmd.Head.PacketID == c.acceptedID {
			return c.replay()
		}
		return nil
	}
	return nil
}

func (c *ClientConn) emitConfirm(respondingTo uint32) []Event {
	c.lastSent = c.uidGen.Next()
	pkt := NewCommand(c.lastSent, respondingTo, CmdConfirm)
	c.lastOutgoing = pkt
	return []Event{SendEvent{Packet: pkt}}
}

func (c *ClientConn) replay() []Event {
	if c.lastOutgoing == nil {
		return nil
	}
	return []Event{SendEvent{Packet: c.lastOutgoing}}
}

func (c *ClientConn) sendNextChunk(respondingTo uint32) []Event {
	remaining := len(c.sendBuf) - c.sendOffset
	if remaining <= 0 {
		c.state = stateCSendingDone
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
		panic(err)
	}
	c.lastOutgoing = frame
	return []Event{SendEvent{Packet: frame}}
}
