package codec

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type profile struct {
	ID    string    `json:"id" msgpack:"id" cbor:"id"`
	Name  string    `json:"name" msgpack:"name" cbor:"name"`
	Roles []string  `json:"roles" msgpack:"roles" cbor:"roles"`
	Seen  time.Time `json:"seen" msgpack:"seen" cbor:"seen"`
}

func sample() profile {
	return profile{
		ID:    "42",
		Name:  "Ada",
		Roles: []string{"admin", "dev"},
		Seen:  time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC),
	}
}

func roundTrip[V any](t *testing.T, c Codec[V], in V) V {
	t.Helper()
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return out
}

func TestStructCodecsRoundTrip(t *testing.T) {
	codecs := map[string]Codec[profile]{
		"json":        JSON[profile]{},
		"msgpack":     Msgpack[profile]{},
		"msgpack+tag": Msgpack[profile]{JSONTags: true},
		"cbor":        MustCBOR[profile](CBOROptions{}),
		"cbor+det":    MustCBOR[profile](CBOROptions{Deterministic: true}),
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			in := sample()
			out := roundTrip(t, c, in)
			if !out.Seen.Equal(in.Seen) {
				t.Fatalf("time mismatch: got %v want %v", out.Seen, in.Seen)
			}
			out.Seen = in.Seen
			if !reflect.DeepEqual(out, in) {
				t.Fatalf("got %+v want %+v", out, in)
			}
		})
	}
}

func TestMsgpackJSONTagsUsesJSONNames(t *testing.T) {
	type onlyJSON struct {
		UserID string `json:"uid"`
	}
	b, err := Msgpack[onlyJSON]{JSONTags: true}.Encode(onlyJSON{UserID: "x"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Contains(b, []byte("uid")) {
		t.Fatalf("expected json field name in payload, got %q", b)
	}
}

func TestCBORDeterministicStable(t *testing.T) {
	c := MustCBOR[map[string]int](CBOROptions{Deterministic: true})
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	first, err := c.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := c.Encode(m)
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic CBOR produced different bytes")
		}
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	out := roundTrip[*wrapperspb.StringValue](t, c, wrapperspb.String("hello"))
	if !proto.Equal(out, wrapperspb.String("hello")) {
		t.Fatalf("got %v", out)
	}

	var zero Protobuf[*wrapperspb.StringValue]
	if _, err := zero.Decode(nil); err == nil {
		t.Fatalf("expected error without constructor")
	}
}

func TestRawCodecs(t *testing.T) {
	if got := roundTrip[string](t, String{}, "héllo"); got != "héllo" {
		t.Fatalf("String: got %q", got)
	}

	src := []byte("abc")
	enc, _ := Bytes{}.Encode(src)
	dec, _ := Bytes{}.Decode(enc)
	dec[0] = 'X'
	if src[0] != 'a' {
		t.Fatalf("Bytes.Decode must not alias its input")
	}
}

func TestLimitCodec(t *testing.T) {
	c := LimitCodec[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
	if got, err := c.Decode([]byte("1234")); err != nil || got != "1234" {
		t.Fatalf("at limit: got %q err=%v", got, err)
	}
	unlimited := LimitCodec[string]{Inner: String{}}
	if _, err := unlimited.Decode(bytes.Repeat([]byte("x"), 1<<16)); err != nil {
		t.Fatalf("MaxDecode=0 should disable the limit: %v", err)
	}
}

func TestFuncsAdapter(t *testing.T) {
	c := Funcs[int]{
		EncodeFunc: func(v int) ([]byte, error) { return []byte{byte(v)}, nil },
		DecodeFunc: func(b []byte) (int, error) { return int(b[0]), nil },
	}
	if got := roundTrip[int](t, c, 7); got != 7 {
		t.Fatalf("got %d", got)
	}
}
