// Package unpacker decodes scripts obfuscated with Dean Edwards' P.A.C.K.E.R.
//
// The packed form is
//
//	eval(function(p,a,c,k,e,d){...}('<payload>',<a>,<c>,'<dict>'.split('|'),0,{}))
//
// where every word token in payload is an index, written in base a, into the
// pipe separated dictionary. Decoding is plain table substitution; nothing is
// ever executed.
package unpacker

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Errors returned by Unpack.
var (
	ErrNotPacked   = errors.New("packer invocation not found")
	ErrBadArgument = errors.New("packer argument malformed")
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// maxMissingWords bounds how far the declared token count may run past the
// dictionary before the invocation is rejected as malformed.
const maxMissingWords = 1024

// MaxBase is the largest radix the packer's own encoder produces with the
// alphanumeric alphabet.
const MaxBase = len(alphabet)

var (
	invocationRe = regexp.MustCompile(`(?s)eval\(\s*function\s*\(\s*p\s*,\s*a\s*,\s*c\s*,\s*k\s*,\s*e\s*,\s*[dr]\s*\).*?\.split\(\s*'\|'\s*\)`)
	argsRe       = regexp.MustCompile(`(?s)\}\s*\(\s*'((?:[^'\\]|\\.)*)'\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*'((?:[^'\\]|\\.)*)'\s*\.split\(\s*'\|'\s*\)`)
	wordRe       = regexp.MustCompile(`\b\w+\b`)

	jsUnescaper = strings.NewReplacer(`\\`, `\`, `\'`, `'`)
)

// Find returns the first packer invocation in src, or "" if there is none.
func Find(src string) string {
	return invocationRe.FindString(src)
}

// IsPacked reports whether src contains a packer invocation.
func IsPacked(src string) bool {
	return invocationRe.MatchString(src)
}

// Unpack decodes the first packer invocation in script.
func Unpack(script string) (string, error) {
	m := argsRe.FindStringSubmatch(script)
	if m == nil {
		return "", ErrNotPacked
	}

	base, err := strconv.Atoi(m[2])
	if err != nil || base < 2 || base > MaxBase {
		return "", fmt.Errorf("%w: radix %q", ErrBadArgument, m[2])
	}
	count, err := strconv.Atoi(m[3])
	if err != nil || count < 0 {
		return "", fmt.Errorf("%w: count %q", ErrBadArgument, m[3])
	}

	payload := jsUnescaper.Replace(m[1])
	dict := strings.Split(jsUnescaper.Replace(m[4]), "|")

	if count > len(dict)+maxMissingWords {
		return "", fmt.Errorf("%w: count %d exceeds dictionary of %d words", ErrBadArgument, count, len(dict))
	}

	// Keys past the dictionary map to themselves, same as a lookup miss.
	n := min(count, len(dict))
	table := make(map[string]string, n)
	for i := 0; i < n; i++ {
		if dict[i] != "" {
			table[Encode(i, base)] = dict[i]
		}
	}

	return wordRe.ReplaceAllStringFunc(payload, func(word string) string {
		if v, ok := table[word]; ok {
			return v
		}
		return word
	}), nil
}

// Encode writes n in the given base the way the packer names its tokens.
func Encode(n, base int) string {
	if n < base {
		return string(alphabet[n])
	}
	return Encode(n/base, base) + string(alphabet[n%base])
}
