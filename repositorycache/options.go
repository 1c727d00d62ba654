package repositorycache

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/goliatone/go-memocache/cache"
)

// Option configures a CachedRepository.
type Option func(*settings)

type settings struct {
	namespace     string
	ttl           time.Duration
	hasTTL        bool
	keySerializer cache.KeySerializer
	logger        *slog.Logger
}

// WithNamespace sets the prefix of every key and tag written by the
// repository. It defaults to the snake_case name of the record type. Tags use
// ":" between segments, so any ":" in namespace is replaced with "_".
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		s.namespace = strings.ReplaceAll(strings.TrimSpace(namespace), ":", "_")
	}
}

// WithTTL overrides the cache default TTL for cached reads.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		s.ttl = ttl
		s.hasTTL = true
	}
}

// WithKeySerializer replaces the hashed key serializer.
func WithKeySerializer(serializer cache.KeySerializer) Option {
	return func(s *settings) {
		s.keySerializer = serializer
	}
}

// WithLogger sets the logger receiving invalidation events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func newSettings[T any](opts []Option) settings {
	var s settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	if s.namespace == "" {
		s.namespace = namespaceFor[T]()
	}
	if s.keySerializer == nil {
		s.keySerializer = cache.NewHashedKeySerializer()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// namespaceFor derives a namespace from the record type, so *WorkoutLog
// becomes workout_log.
func namespaceFor[T any]() string {
	rt := reflect.TypeFor[T]()
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}

	name := rt.Name()
	if name == "" {
		name = rt.String()
	}
	if ns := strings.Join(nameWords(name), "_"); ns != "" {
		return ns
	}
	return "record"
}

// nameWords splits a Go type name into lower-case words. Words break at case
// changes and letter/digit boundaries; any other rune (the "." and brackets
// of generic or qualified names, ":" included) only separates words and never
// reaches the result. An upper-case run keeps its last letter for the next
// word, so HTTPCheckIn yields http, check, in.
func nameWords(name string) []string {
	runes := []rune(name)
	var (
		words []string
		word  []rune
	)
	flush := func() {
		if len(word) > 0 {
			words = append(words, strings.ToLower(string(word)))
			word = word[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(word) > 0 {
			prev := word[len(word)-1]
			switch {
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsLower(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) &&
				i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush()
			}
		}
		word = append(word, r)
	}
	flush()
	return words
}
