package protocol

import (
	"strconv"
	"strings"
)

// Encode appends the wire representation of frame to b and returns the
// extended slice, following the append-and-return accumulator style so
// a connection's write buffer can be reused across replies without
// per-call allocation.
func Encode(b []byte, frame Frame) []byte {
	switch frame.Type {
	case TypeSimpleString:
		return appendSimple(b, '+', frame.Str)
	case TypeError:
		return appendSimple(b, '-', frame.Str)
	case TypeInteger:
		return appendInt(b, ':', frame.Int)
	case TypeBulkString, TypeInline:
		if frame.Type == TypeInline {
			return appendArray(b, frame.Elems)
		}
		return appendBulk(b, frame.Bulk)
	case TypeNullBulk:
		return append(b, '$', '-', '1', '\r', '\n')
	case TypeArray:
		return appendArray(b, frame.Elems)
	case TypeNullArray:
		return append(b, '*', '-', '1', '\r', '\n')
	case TypeNull:
		return append(b, '_', '\r', '\n')
	case TypeBoolean:
		if frame.Bool {
			return append(b, '#', 't', '\r', '\n')
		}
		return append(b, '#', 'f', '\r', '\n')
	case TypeDouble:
		return appendDouble(b, frame.Float)
	case TypeBigNumber:
		return appendSimple(b, '(', frame.Bulk)
	case TypeVerbatimString:
		payload := "txt:" + frame.Bulk
		b = append(b, '=')
		b = strconv.AppendInt(b, int64(len(payload)), 10)
		b = append(b, '\r', '\n')
		b = append(b, payload...)
		return append(b, '\r', '\n')
	case TypeMap:
		b = append(b, '%')
		b = strconv.AppendInt(b, int64(len(frame.MapKeys)), 10)
		b = append(b, '\r', '\n')
		for i := range frame.MapKeys {
			b = Encode(b, frame.MapKeys[i])
			b = Encode(b, frame.Elems[i])
		}
		return b
	case TypeSet:
		return appendCollection(b, '~', frame.Elems)
	case TypePush:
		return appendCollection(b, '>', frame.Elems)
	default:
		return appendSimple(b, '-', "ERR internal encoding error")
	}
}

// stripNewlines removes embedded CR/LF from content that must ride in a
// single-line RESP type (simple strings, errors, big numbers), since
// those types cannot carry the line terminator without corrupting
// framing.
func stripNewlines(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	r := strings.NewReplacer("\r", " ", "\n", " ")
	return r.Replace(s)
}

func appendSimple(b []byte, lead byte, s string) []byte {
	b = append(b, lead)
	b = append(b, stripNewlines(s)...)
	return append(b, '\r', '\n')
}

func appendInt(b []byte, lead byte, n int64) []byte {
	b = append(b, lead)
	b = strconv.AppendInt(b, n, 10)
	return append(b, '\r', '\n')
}

func appendBulk(b []byte, s string) []byte {
	b = append(b, '$')
	b = strconv.AppendInt(b, int64(len(s)), 10)
	b = append(b, '\r', '\n')
	b = append(b, s...)
	return append(b, '\r', '\n')
}

func appendArray(b []byte, elems []Frame) []byte {
	b = append(b, '*')
	b = strconv.AppendInt(b, int64(len(elems)), 10)
	b = append(b, '\r', '\n')
	for _, e := range elems {
		b = Encode(b, e)
	}
	return b
}

func appendCollection(b []byte, lead byte, elems []Frame) []byte {
	b = append(b, lead)
	b = strconv.AppendInt(b, int64(len(elems)), 10)
	b = append(b, '\r', '\n')
	for _, e := range elems {
		b = Encode(b, e)
	}
	return b
}

func appendDouble(b []byte, f float64) []byte {
	b = append(b, ',')
	switch {
	case f != f: // NaN
		b = append(b, 'n', 'a', 'n')
	case f > 0 && posInfEqual(f):
		b = append(b, 'i', 'n', 'f')
	case f < 0 && negInfEqual(f):
		b = append(b, '-', 'i', 'n', 'f')
	default:
		b = strconv.AppendFloat(b, f, 'g', -1, 64)
	}
	return append(b, '\r', '\n')
}

func posInfEqual(f float64) bool { return f == posInf }
func negInfEqual(f float64) bool { return f == negInf }
