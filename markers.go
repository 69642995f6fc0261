package distcache

import (
	"errors"
	"time"

	"github.com/unkn0wn-root/distcache/internal/wire"
	"github.com/unkn0wn-root/distcache/store"
)

// advanceMarkerScript writes ARGV[1] as the tag marker only when it is newer than
// the stored one, so a marker never moves backward in time. ARGV[2] is the marker
// TTL in milliseconds (0 => no expiry). Replies 1 when written, 0 otherwise.
//
// Markers are fixed-size big-endian unix nanos behind a shared header, so for
// non-negative timestamps a byte-wise compare of the body is a numeric compare.
// An unreadable current marker is overwritten.
var advanceMarkerScript = store.NewScript(`
local cur = redis.call("GET", KEYS[1])
local nxt = ARGV[1]
if cur and #cur == #nxt and string.sub(cur, 1, 6) == string.sub(nxt, 1, 6) then
	for i = 7, #nxt do
		local a, b = string.byte(cur, i), string.byte(nxt, i)
		if a > b then
			return 0
		elseif a < b then
			break
		elseif i == #nxt then
			return 0
		end
	end
end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call("SET", KEYS[1], nxt, "PX", ttl)
else
	redis.call("SET", KEYS[1], nxt)
end
return 1`, func(tx store.Tx, ks []string, args ...any) (any, error) {
	if len(ks) != 1 || len(args) != 2 {
		return nil, errors.New("distcache: marker write expects one key and two args")
	}
	var nxt []byte
	switch v := args[0].(type) {
	case string:
		nxt = []byte(v)
	case []byte:
		nxt = v
	default:
		return nil, errors.New("distcache: marker must be string or []byte")
	}
	ttlMs, ok := args[1].(int64)
	if !ok {
		return nil, errors.New("distcache: marker ttl must be int64 milliseconds")
	}
	at, err := wire.DecodeMarker(nxt)
	if err != nil {
		return nil, err
	}
	if raw, ok := tx.Get(ks[0]); ok {
		if cur, err := wire.DecodeMarker(raw); err == nil && cur >= at {
			return int64(0), nil
		}
	}
	tx.SetTTL(ks[0], nxt, time.Duration(ttlMs)*time.Millisecond)
	return int64(1), nil
})

// ttlMillis rounds a positive sub-millisecond ttl up so it never turns into "no expiry".
func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	if ms := ttl.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}
