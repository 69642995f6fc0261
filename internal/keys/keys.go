// Package keys maps logical cache keys, tags, rate-limit identities and lock
// names into the store's flat keyspace.
package keys

import (
	"strconv"
	"strings"
)

const (
	sep        = ":"
	lockSuffix = ":lock"

	entryKind = "entry"
	tagKind   = "tag"
	limitKind = "limit"
)

// Formatter applies one isolation namespace uniformly to every kind of key.
// The zero value formats without a prefix.
type Formatter struct {
	prefix string
}

// New returns a Formatter for namespace. An empty namespace means no prefix.
func New(namespace string) Formatter {
	if namespace == "" {
		return Formatter{}
	}
	return Formatter{prefix: namespace + sep}
}

// Namespace returns the configured namespace ("" when unprefixed).
func (f Formatter) Namespace() string {
	return strings.TrimSuffix(f.prefix, sep)
}

func (f Formatter) Entry(key string) string { return f.prefix + entryKind + sep + key }

func (f Formatter) Tag(tag string) string { return f.prefix + tagKind + sep + tag }

// identEscaper keeps caller identifiers from introducing their own separators,
// so ("a:b", "") and ("a", "b") map to different keys.
var identEscaper = strings.NewReplacer(`\`, `\\`, sep, `\`+sep)

// RateLimit builds the counter key for an action and its identities.
// Identifiers are escaped; a blank secondary identifier is omitted.
func (f Formatter) RateLimit(action int, primary, secondary string) string {
	var b strings.Builder
	b.Grow(len(f.prefix) + len(limitKind) + len(primary) + len(secondary) + 16)
	b.WriteString(f.prefix)
	b.WriteString(limitKind)
	b.WriteString(sep)
	b.WriteString(strconv.Itoa(action))
	b.WriteString(sep)
	identEscaper.WriteString(&b, primary)
	if strings.TrimSpace(secondary) != "" {
		b.WriteString(sep)
		identEscaper.WriteString(&b, secondary)
	}
	return b.String()
}

func (f Formatter) Entries(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = f.Entry(k)
	}
	return out
}

func (f Formatter) Tags(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = f.Tag(t)
	}
	return out
}

// Lock derives the lock key from an already formatted resource key.
func Lock(resourceKey string) string { return resourceKey + lockSuffix }
