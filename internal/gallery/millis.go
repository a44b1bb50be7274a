package gallery

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Millis is a unix timestamp in milliseconds. Peers send it as an integer, a
// float, a numeric string or a msgpack timestamp; all decode to the same value.
type Millis int64

var (
	_ msgpack.CustomEncoder = Millis(0)
	_ msgpack.CustomDecoder = (*Millis)(nil)
)

func (m Millis) Time() time.Time { return time.UnixMilli(int64(m)) }

func (m Millis) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeInt(int64(m))
}

func (m *Millis) DecodeMsgpack(dec *msgpack.Decoder) error {
	c, err := dec.PeekCode()
	if err != nil {
		return err
	}
	switch {
	case c == msgpcode.Nil:
		*m = 0
		return dec.DecodeNil()
	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		return m.setFloat(f)
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		if err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*m = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("gallery: timestamp %q is not numeric", s)
		}
		return m.setFloat(f)
	case msgpcode.IsExt(c):
		t, err := dec.DecodeTime()
		if err != nil {
			return err
		}
		*m = Millis(t.UnixMilli())
		return nil
	default:
		n, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		*m = Millis(n)
		return nil
	}
}

func (m *Millis) setFloat(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return fmt.Errorf("gallery: timestamp %v out of range", f)
	}
	*m = Millis(math.Trunc(f))
	return nil
}
