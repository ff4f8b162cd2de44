// Package tokenize turns trusted student records into token-only snapshots.
//
// Every analysis owns one Session. A Session derives its own HMAC key, keeps
// the only reverse map from tokens to raw identifiers, and is wiped on Close,
// so tokens from one session mean nothing to another.
package tokenize

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

const (
	// digestLen is the hex length of the identifier digest (96 bits).
	digestLen = 24
	keyLen    = 32
	hkdfInfo  = "safeguard/tokenizer/v1"
	// maxCollisionRetries bounds the salted recomputation on digest collision.
	maxCollisionRetries = 16
)

// Tokenizer creates sessions. It holds the master key and nothing else.
type Tokenizer struct {
	masterKey []byte
	clock     application.Clock
}

// New returns a Tokenizer. An empty master key makes every session use a
// fresh random key.
func New(masterKey []byte, clock application.Clock) *Tokenizer {
	if clock == nil {
		clock = application.SystemClock{}
	}
	k := make([]byte, len(masterKey))
	copy(k, masterKey)
	return &Tokenizer{masterKey: k, clock: clock}
}

func deriveKey(secret, salt []byte, info string) ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveKey derives a stable 32-byte key for a named purpose from a master
// secret. Unlike session keys it uses no salt, so the result is the same
// across restarts.
func DeriveKey(master []byte, purpose string) []byte {
	key, err := deriveKey(master, nil, purpose)
	if err != nil {
		// hkdf only fails when asked for more than 255 blocks.
		panic(err)
	}
	return key
}

// NewSession derives a per-session key with HKDF over a random salt.
func (t *Tokenizer) NewSession() (*Session, error) {
	secret := t.masterKey
	if len(secret) == 0 {
		secret = make([]byte, keyLen)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	salt := make([]byte, keyLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate session salt: %w", err)
	}
	key, err := deriveKey(secret, salt, hkdfInfo)
	if err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &Session{
		id:         uuid.New().String(),
		key:        key,
		clock:      t.clock,
		rawToToken: make(map[rawKey]safeguarding.Token),
		reverse:    make(map[string]rawKey),
		metadata:   make(map[string]Metadata),
	}, nil
}

type rawKey struct {
	category safeguarding.TokenCategory
	raw      string
}

// Metadata is the creation context of a token.
type Metadata struct {
	Category  safeguarding.TokenCategory
	CreatedAt time.Time
	// Salt is non-zero when the digest had to be recomputed after a collision.
	Salt int
}

// Session owns the raw→token map for one analysis. It is safe for
// concurrent use but is meant to live for a single pipeline run.
type Session struct {
	id    string
	key   []byte
	clock application.Clock

	mu         sync.RWMutex
	closed     bool
	rawToToken map[rawKey]safeguarding.Token
	reverse    map[string]rawKey
	metadata   map[string]Metadata
}

func (s *Session) ID() string { return s.id }

// TokenizeIdentifier returns the token for rawID within the category
// namespace. Repeated calls return the identical token.
func (s *Session) TokenizeIdentifier(category safeguarding.TokenCategory, rawID string) (safeguarding.Token, error) {
	if !category.Valid() {
		return safeguarding.Token{}, fmt.Errorf("unknown token category %q", category)
	}
	if strings.TrimSpace(rawID) == "" {
		return safeguarding.Token{}, &safeguarding.ValidationError{Field: "identifier", Reason: "empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return safeguarding.Token{}, safeguarding.ErrSessionClosed
	}

	rk := rawKey{category: category, raw: rawID}
	if tok, ok := s.rawToToken[rk]; ok {
		return tok, nil
	}

	for salt := 0; salt <= maxCollisionRetries; salt++ {
		tok := safeguarding.Token{
			Category: category,
			Value:    fmt.Sprintf("TOKEN_%s_%s", category, s.digest(category, rawID, salt)),
		}
		if _, taken := s.reverse[tok.Value]; taken {
			continue
		}
		s.rawToToken[rk] = tok
		s.reverse[tok.Value] = rk
		s.metadata[tok.Value] = Metadata{Category: category, CreatedAt: s.clock.Now(), Salt: salt}
		return tok, nil
	}
	return safeguarding.Token{}, fmt.Errorf("token digest collision not resolved after %d attempts", maxCollisionRetries)
}

func (s *Session) digest(category safeguarding.TokenCategory, rawID string, salt int) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(category))
	mac.Write([]byte{0x1f})
	mac.Write([]byte(rawID))
	if salt > 0 {
		fmt.Fprintf(mac, "\x1f%d", salt)
	}
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil))[:digestLen])
}

// Lookup returns the existing token for rawID without creating one.
func (s *Session) Lookup(category safeguarding.TokenCategory, rawID string) (safeguarding.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return safeguarding.Token{}, false
	}
	tok, ok := s.rawToToken[rawKey{category: category, raw: rawID}]
	return tok, ok
}

// Resolve reverses a token issued by this session.
func (s *Session) Resolve(tok safeguarding.Token) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false
	}
	rk, ok := s.reverse[tok.Value]
	if !ok || rk.category != tok.Category {
		return "", false
	}
	return rk.raw, true
}

// Metadata returns the creation context of a token issued by this session.
func (s *Session) Metadata(tok safeguarding.Token) (Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metadata[tok.Value]
	return m, ok
}

// Len is the number of tokens issued.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rawToToken)
}

// Close wipes the maps and the key. Further tokenization fails.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for i := range s.key {
		s.key[i] = 0
	}
	clear(s.rawToToken)
	clear(s.reverse)
	clear(s.metadata)
	s.closed = true
}

func (s *Session) issued(value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reverse[value]
	return ok
}

// rawIdentifiers returns a snapshot of the raw ids the session has seen.
func (s *Session) rawIdentifiers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rawToToken))
	for rk := range s.rawToToken {
		out = append(out, rk.raw)
	}
	return out
}
