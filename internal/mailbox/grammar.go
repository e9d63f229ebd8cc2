// Package mailbox implements the message writer (component D) and mailbox
// watcher (component E) from spec sections 4.1 and 4.2: a crash-safe file
// queue built on atomic renames, a persistent ledger, and the filename
// grammar from spec section 6.
package mailbox

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const randAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{1,60}$`)

// Stem is the parsed form of a mailbox filename stem, per spec section 6:
//
//	{threadId}__{isoTimestampWithDashes}-{rand6}__{slug}.md
type Stem struct {
	ThreadID string // may be empty: filename omitted it (1-token stem)
	Title    string
}

// ParseStem implements spec section 4.1 step 3's splitting rule: split the
// stem by "__"; >=3 tokens => threadId=tok[0], title=join(tok[2:]); 2
// tokens => threadId=tok[0], title=tok[1]; 1 token => no threadId,
// title=stem.
func ParseStem(stem string) Stem {
	tokens := strings.Split(stem, "__")
	switch {
	case len(tokens) >= 3:
		return Stem{ThreadID: tokens[0], Title: strings.Join(tokens[2:], "__")}
	case len(tokens) == 2:
		return Stem{ThreadID: tokens[0], Title: tokens[1]}
	default:
		return Stem{Title: stem}
	}
}

// randToken returns a 6 URL-safe-character opaque token.
func randToken() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively fatal for the process; fall
		// back to a fixed-length base32 encoding of the zero buffer rather
		// than panicking, since filenames must still be producible.
		return "aaaaaa"
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:])
	enc = strings.ToLower(enc)
	if len(enc) > 6 {
		enc = enc[:6]
	}
	return enc
}

// slugify normalizes title into the `[a-z0-9-]{1,60}` grammar, falling
// back to "message" per spec section 3/6.
func slugify(title string) string {
	lower := strings.ToLower(title)
	var b strings.Builder
	lastDash := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	if slug == "" || !slugPattern.MatchString(slug) {
		return "message"
	}
	return slug
}

// isoTimestamp formats t as ISO-8601 UTC with ':' and '.' replaced by '-',
// per spec section 6.
func isoTimestamp(t time.Time) string {
	s := t.UTC().Format("2006-01-02T15:04:05.000Z")
	s = strings.ReplaceAll(s, ":", "-")
	s = strings.ReplaceAll(s, ".", "-")
	return s
}

// BuildStem constructs a filename stem for (threadID, title, now), per the
// message writer's job in spec section 4.2.
func BuildStem(threadID, title string, now time.Time) string {
	return fmt.Sprintf("%s__%s-%s__%s", threadID, isoTimestamp(now), randToken(), slugify(title))
}

// IsValidFilename reports whether name satisfies the mailbox filename
// grammar well enough to be handled (".md" suffix; threadId, if present,
// must not itself contain "__", which ParseStem's splitting already
// guarantees structurally).
func IsValidFilename(name string) bool {
	return strings.HasSuffix(name, ".md")
}
