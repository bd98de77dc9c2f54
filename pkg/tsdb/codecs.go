// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

var stationCodec = slotCodec[Station]{
	size: stationSize,
	marshal: func(s Station, b []byte) {
		s.marshal(b)
	},
	unmarshal: func(b []byte) Station {
		var s Station
		s.unmarshal(b)
		return s
	},
}

var channelCodec = slotCodec[Channel]{
	size: channelSize,
	marshal: func(c Channel, b []byte) {
		c.marshal(b)
	},
	unmarshal: func(b []byte) Channel {
		var c Channel
		c.unmarshal(b)
		return c
	},
}

var indexEntryCodec = slotCodec[indexEntry]{
	size: indexEntrySize,
	marshal: func(e indexEntry, b []byte) {
		e.marshal(b)
	},
	unmarshal: func(b []byte) indexEntry {
		var e indexEntry
		e.unmarshal(b)
		return e
	},
}
