// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net"
	"time"

	"github.com/hayselnut/stationd/internal/ingest"
	"github.com/hayselnut/stationd/internal/metrics"
	"github.com/hayselnut/stationd/pkg/bus"
	"github.com/hayselnut/stationd/pkg/log"
	"github.com/hayselnut/stationd/pkg/transport"
	"golang.org/x/time/rate"
)

// Per-source packet budget. A hayselnut reports a handful of readings per
// minute; even a full transaction with retransmissions stays far below
// this, so anything over it is a misbehaving or spoofed peer.
const (
	stationPacketRate  rate.Limit = 200
	stationPacketBurst            = 400
)

// digestSize is the length of the BLAKE2b-256 prefix carried by every
// application payload when verify-digest is enabled.
const digestSize = 32

// station tracks one remote address's transport transaction state plus
// the bus runtime decoding its application-layer packets. One exists per
// distinct UDP source address the daemon has ever heard from, created
// lazily on first contact - there is no separate "accept" step in a
// connectionless protocol.
type station struct {
	conn    *transport.ServerConn
	rt      *bus.Runtime
	limiter *rate.Limiter
}

// runUDPPump owns the UDP socket: it is the sole reader and writer, so no
// locking is needed around the per-address station map.
func runUDPPump(ctx context.Context, pc net.PacketConn, disp *bus.Dispatcher, tsdbInst, relayInst bus.HandlerInstance, txTimeout time.Duration, verifyDigest bool, m *metrics.Metrics) {
	stations := make(map[string]*station)
	buf := make([]byte, transport.MaxPacketSize)

	for {
		select {
		case <-ctx.Done():
			for _, st := range stations {
				st.rt.Shutdown()
			}
			return
		default:
		}

		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("stationd: udp read: %s", err.Error())
			continue
		}

		pkt, err := transport.Decode(buf[:n])
		if err != nil {
			log.Warnf("stationd: decode from %s: %s", addr, err.Error())
			if m != nil {
				m.PacketsDropped.WithLabelValues("decode-error").Inc()
			}
			continue
		}

		key := addr.String()
		st, ok := stations[key]
		if !ok {
			st = newStation(disp, tsdbInst, relayInst, txTimeout, verifyDigest)
			stations[key] = st
		}

		if !st.limiter.Allow() {
			if m != nil {
				m.PacketsDropped.WithLabelValues("rate-limited").Inc()
			}
			continue
		}
		if m != nil {
			kind := "command"
			if _, ok := pkt.(*transport.Frame); ok {
				kind = "frame"
			}
			m.PacketsReceived.WithLabelValues(kind).Inc()
		}

		events := st.conn.Handle(pkt, time.Now())
		for _, ev := range events {
			switch e := ev.(type) {
			case transport.SendEvent:
				out, err := transport.Encode(e.Packet)
				if err != nil {
					log.Errorf("stationd: encode reply to %s: %s", addr, err.Error())
					continue
				}
				if _, err := pc.WriteTo(out, addr); err != nil {
					log.Errorf("stationd: write to %s: %s", addr, err.Error())
				}
			case transport.ReceivedEvent:
				payload := e.Data
				if verifyDigest {
					payload, ok = openPayload(payload)
					if !ok {
						log.Warnf("stationd: bad payload digest from %s, dropping", addr)
						if m != nil {
							m.PacketsDropped.WithLabelValues("bad-digest").Inc()
						}
						continue
					}
				}
				disp.Announce(bus.HandlerInstance{}, bus.ToInstance(st.rt.Instance()), ingest.MethodPacketReceived, payload)
			case transport.TimedOutEvent:
				log.Warnf("stationd: transaction with %s timed out", addr)
			}
		}
	}
}

// openPayload strips and checks the digest prefix a station prepends to
// its payloads when verify-digest is on.
func openPayload(b []byte) ([]byte, bool) {
	if len(b) < digestSize {
		return nil, false
	}
	var sum [digestSize]byte
	copy(sum[:], b[:digestSize])
	body := b[digestSize:]
	if !transport.VerifyDigest(body, sum) {
		return nil, false
	}
	return body, true
}

// sealPayload prepends the digest to an outbound payload, the mirror of
// openPayload for replies queued to a digest-verifying station.
func sealPayload(b []byte) []byte {
	sum := transport.Digest(b)
	return append(sum[:], b...)
}

func newStation(disp *bus.Dispatcher, tsdbInst, relayInst bus.HandlerInstance, txTimeout time.Duration, verifyDigest bool) *station {
	serverConn := transport.NewServerConn(txTimeout)
	h := ingest.New(tsdbInst, relayInst, func(payload []byte) error {
		if verifyDigest {
			payload = sealPayload(payload)
		}
		serverConn.Queue(payload)
		return nil
	})
	rt := bus.NewRuntime(disp, h)
	go func() { _ = rt.Run(context.Background()) }()
	return &station{
		conn:    serverConn,
		rt:      rt,
		limiter: rate.NewLimiter(stationPacketRate, stationPacketBurst),
	}
}
