package cli

import (
	"net"
	"sync"
	"time"

	expect "github.com/google/goexpect"
)

// Telnet protocol bytes (RFC 854)
const (
	telnetIAC  = 255
	telnetDONT = 254
	telnetDO   = 253
	telnetWONT = 252
	telnetWILL = 251
	telnetSB   = 250
	telnetSE   = 240
)

// telnetReader strips Telnet commands from the stream and refuses every
// option the controller offers or asks for, leaving a plain NVT session.
type telnetReader struct {
	conn  net.Conn
	state int
	cmd   byte
}

const (
	tsData = iota
	tsIAC
	tsOption
	tsSub
	tsSubIAC
)

func (t *telnetReader) Read(p []byte) (int, error) {
	raw := make([]byte, len(p))
	for {
		n, err := t.conn.Read(raw)
		out := 0
		for _, b := range raw[:n] {
			switch t.state {
			case tsData:
				if b == telnetIAC {
					t.state = tsIAC
					continue
				}
				p[out] = b
				out++
			case tsIAC:
				switch b {
				case telnetIAC:
					p[out] = b
					out++
					t.state = tsData
				case telnetDO, telnetDONT, telnetWILL, telnetWONT:
					t.cmd = b
					t.state = tsOption
				case telnetSB:
					t.state = tsSub
				default:
					t.state = tsData
				}
			case tsOption:
				t.refuse(t.cmd, b)
				t.state = tsData
			case tsSub:
				if b == telnetIAC {
					t.state = tsSubIAC
				}
			case tsSubIAC:
				if b == telnetSE {
					t.state = tsData
				} else {
					t.state = tsSub
				}
			}
		}
		if out > 0 || err != nil {
			return out, err
		}
	}
}

func (t *telnetReader) refuse(cmd, option byte) {
	var reply byte
	switch cmd {
	case telnetDO:
		reply = telnetWONT
	case telnetWILL:
		reply = telnetDONT
	default:
		return
	}
	_, _ = t.conn.Write([]byte{telnetIAC, reply, option})
}

// spawnTelnet starts an expect session on a Telnet connection
func spawnTelnet(conn net.Conn, timeout time.Duration, opts ...expect.Option) (*expect.GExpect, <-chan error, error) {
	done := make(chan struct{})
	var once sync.Once
	closeConn := func() error {
		var err error
		once.Do(func() {
			close(done)
			err = conn.Close()
		})
		return err
	}

	return expect.SpawnGeneric(&expect.GenOptions{
		In:  conn,
		Out: &telnetReader{conn: conn},
		Wait: func() error {
			<-done
			return nil
		},
		Close: closeConn,
		Check: func() bool { return true },
	}, timeout, opts...)
}
