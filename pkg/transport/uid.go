// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

// UidGen produces packet ids that are unique per the immediate predecessor
// only: 0 is reserved null, values wrap on overflow, and a
// long-uptime collision with a much earlier id is accepted because the
// protocol never compares beyond the last packet it sent.
type UidGen struct {
	current uint32
}

// Next returns the next non-zero id.
func (g *UidGen) Next() uint32 {
	g.current++
	if g.current == 0 {
		g.current = 1
	}
	return g.current
}
