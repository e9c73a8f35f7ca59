// Package pms5003 decodes the fixed-length binary frames emitted by
// PMS5003-family particulate-matter sensors.
//
// Every frame is 32 bytes long and starts with the marker 0x42 0x4D:
//
//	offset  len  field
//	0       2    start marker 0x42 0x4D
//	2       2    frame length (not interpreted)
//	4       24   twelve big-endian uint16 measurements
//	28      2    reserved
//	30      2    checksum: big-endian sum of bytes 0..29
//
// # Streaming
//
// A Decoder is fed an append-only *bytes.Buffer that the caller grows as
// bytes arrive from the serial line:
//
//	dec := pms5003.NewDecoder()
//	var buf bytes.Buffer
//	for {
//	    n, err := port.Read(chunk)
//	    buf.Write(chunk[:n])
//	    for {
//	        frame, err := dec.Decode(&buf)
//	        if err != nil {
//	            // the bad frame was already consumed; keep going
//	            continue
//	        }
//	        if frame == nil {
//	            break // need more data
//	        }
//	        handle(*frame)
//	    }
//	}
//
// Decode never blocks and never panics. Bytes in front of a marker are
// dropped as noise, and a frame that fails validation is consumed so the
// next call resynchronizes on the following marker.
//
// # Startup artifacts
//
// Some host serial drivers replay stale buffered bytes right after the port
// is opened, which shows up as up to two bogus markers. WithStartupSkip(true)
// drops the first two markers seen by a decoder without parsing them.
package pms5003
