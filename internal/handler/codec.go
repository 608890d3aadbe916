package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxBodySize bounds request bodies read by decode.
const maxBodySize = 1 << 20

// bodyError marks a malformed or oversized request body.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string {
	return "invalid request body: " + e.err.Error()
}

func (e *bodyError) Unwrap() error {
	return e.err
}

// writeJSON writes status and the object produced by enc.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, enc func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	enc(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		zctx.From(r.Context()).Debug("Write response", zap.Error(err))
	}
}

// writeMessage writes the {"success", "message"} envelope.
func writeMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("success", func(e *jx.Encoder) { e.Bool(status < http.StatusBadRequest) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// decode reads the request body as a JSON object and calls field for each
// key. Decoding failures are returned as *bodyError.
func decode(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return &bodyError{err: err}
	}
	if len(data) > maxBodySize {
		return &bodyError{err: errors.New("body too large")}
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return &bodyError{err: errors.New("expected object")}
	}
	if err := d.Obj(field); err != nil {
		return &bodyError{err: err}
	}
	return nil
}

// decodeString reads a string value. null yields "".
func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeStrings reads an array of strings. null yields nil.
func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// decodeDecimal reads a JSON number, or a number quoted as a string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(strings.Trim(n.String(), `"`))
}

// decodeInt reads an integer that may be sent as a JSON number or string.
func decodeInt(d *jx.Decoder) (int, error) {
	n, err := d.Num()
	if err != nil {
		return 0, err
	}
	v, err := decimal.NewFromString(strings.Trim(n.String(), `"`))
	if err != nil {
		return 0, err
	}
	if !v.IsInteger() {
		return 0, errors.Errorf("%s is not an integer", v)
	}
	return int(v.IntPart()), nil
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeStrings(e *jx.Encoder, vs []string) {
	e.ArrStart()
	for _, v := range vs {
		e.Str(v)
	}
	e.ArrEnd()
}
