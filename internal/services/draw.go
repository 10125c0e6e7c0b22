package services

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/stwalsh4118/landflow/internal/models"
)

const (
	// DrawAlgorithm is stored on every draw record so a verifier knows how
	// to recompute the permutation.
	DrawAlgorithm = "hkdf-sha256/fisher-yates/v1"

	drawInfo  = "landflow/e-draw/v1"
	nonceSize = 32

	// HKDF-SHA256 can expand at most 255 hash blocks per info value. The
	// stream is extended by appending a big-endian block counter to info.
	hkdfBlockSize = 255 * sha256.Size
)

// ErrDrawMismatch is returned by VerifyDraw when a record does not reproduce.
var ErrDrawMismatch = errors.New("draw record does not reproduce")

// CanonicalCandidates returns ids sorted lexicographically with duplicates removed.
func CanonicalCandidates(ids []string) []string {
	return uniqueSorted(ids)
}

// InputsHash is the hex SHA-256 of the canonical candidates joined by newlines.
func InputsHash(candidates []string) string {
	sum := sha256.Sum256([]byte(strings.Join(candidates, "\n")))
	return hex.EncodeToString(sum[:])
}

// NewNonce reads a fresh draw nonce from r, or crypto/rand when r is nil.
func NewNonce(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate draw nonce: %w", err)
	}
	return nonce, nil
}

// Permute shuffles candidates with Fisher-Yates, drawing from a byte stream
// derived from nonce and the inputs hash. The same nonce and candidates
// always give the same permutation.
func Permute(nonce []byte, candidates []string) ([]string, error) {
	if len(nonce) == 0 {
		return nil, models.Invalid("nonce", "is required")
	}
	salt, err := hex.DecodeString(InputsHash(candidates))
	if err != nil {
		return nil, err
	}
	stream := newDrawStream(nonce, salt)

	out := slices.Clone(candidates)
	for i := len(out) - 1; i > 0; i-- {
		j, err := stream.uniform(uint64(i + 1))
		if err != nil {
			return nil, err
		}
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// VerifyDraw recomputes a record's permutation from its nonce and candidates
// and checks it against what was stored.
func VerifyDraw(rec *models.DrawRecord) error {
	if rec.Algorithm != DrawAlgorithm {
		return fmt.Errorf("%w: unknown algorithm %q", ErrDrawMismatch, rec.Algorithm)
	}
	if !slices.Equal(rec.Candidates, CanonicalCandidates(rec.Candidates)) {
		return fmt.Errorf("%w: candidates are not in canonical order", ErrDrawMismatch)
	}
	if got := InputsHash(rec.Candidates); got != rec.InputsHash {
		return fmt.Errorf("%w: inputs hash %s, recorded %s", ErrDrawMismatch, got, rec.InputsHash)
	}
	nonce, err := hex.DecodeString(rec.Nonce)
	if err != nil {
		return fmt.Errorf("%w: nonce is not hex: %v", ErrDrawMismatch, err)
	}
	perm, err := Permute(nonce, rec.Candidates)
	if err != nil {
		return err
	}
	if !slices.Equal(perm, rec.Permutation) {
		return fmt.Errorf("%w: permutation differs", ErrDrawMismatch)
	}
	if rec.SelectedCount < 1 || rec.SelectedCount > len(perm) {
		return fmt.Errorf("%w: selected count %d out of range", ErrDrawMismatch, rec.SelectedCount)
	}
	return nil
}

type drawStream struct {
	prk   []byte
	block uint64
	buf   *bytes.Reader
}

func newDrawStream(nonce, salt []byte) *drawStream {
	return &drawStream{prk: hkdf.Extract(sha256.New, nonce, salt)}
}

func (s *drawStream) next() error {
	info := binary.BigEndian.AppendUint64([]byte(drawInfo), s.block)
	s.block++
	block := make([]byte, hkdfBlockSize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, s.prk, info), block); err != nil {
		return fmt.Errorf("failed to expand draw stream: %w", err)
	}
	s.buf = bytes.NewReader(block)
	return nil
}

func (s *drawStream) next64() (uint64, error) {
	if s.buf == nil || s.buf.Len() < 8 {
		if err := s.next(); err != nil {
			return 0, err
		}
	}
	var b [8]byte
	if _, err := io.ReadFull(s.buf, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// uniform returns a value in [0, bound) without modulo bias by rejecting
// draws from the incomplete top bucket.
func (s *drawStream) uniform(bound uint64) (uint64, error) {
	rem := (math.MaxUint64%bound + 1) % bound
	for {
		v, err := s.next64()
		if err != nil {
			return 0, err
		}
		if rem == 0 || v <= math.MaxUint64-rem {
			return v % bound, nil
		}
	}
}
