package store

import (
	"fmt"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/storage"
	"github.com/fxamacker/cbor/v2"
)

// Los registros viajan en un sobre versionado CBOR. Los tiempos se guardan
// como Unix nanos UTC (0 = ausente).
const codecVersion = 1

const (
	kindIdentity = "identity"
	kindSession  = "session"
	kindIndex    = "index"
)

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

type envelope struct {
	V    int             `cbor:"v"`
	Kind string          `cbor:"k"`
	Data cbor.RawMessage `cbor:"d"`
}

type identityRecord struct {
	ID             string            `cbor:"id"`
	Attributes     map[string]string `cbor:"attrs"`
	Status         string            `cbor:"status"`
	CreatedAt      int64             `cbor:"created"`
	UpdatedAt      int64             `cbor:"updated"`
	CredentialHash string            `cbor:"cred,omitempty"`
}

type sessionRecord struct {
	ID          string `cbor:"id"`
	IdentityID  string `cbor:"identity"`
	KID         string `cbor:"kid"`
	Fingerprint string `cbor:"fp"`
	IssuedAt    int64  `cbor:"iat"`
	ExpiresAt   int64  `cbor:"exp"`
	Revoked     bool   `cbor:"revoked"`
	RevokedAt   int64  `cbor:"revoked_at,omitempty"`
}

type indexRecord struct {
	Members []string `cbor:"m"`
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func encode(kind string, v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(envelope{V: codecVersion, Kind: kind, Data: data})
}

func decode(raw []byte, kind string, v any) error {
	var env envelope
	if err := cbor.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	if env.V != codecVersion || env.Kind != kind {
		return fmt.Errorf("%w: unexpected envelope v=%d kind=%q", storage.ErrCorrupt, env.V, env.Kind)
	}
	if err := cbor.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	return nil
}

// ─── Identity ───

func encodeIdentity(i *repository.Identity) ([]byte, error) {
	return encode(kindIdentity, identityRecord{
		ID:             i.ID,
		Attributes:     i.Attributes,
		Status:         string(i.Status),
		CreatedAt:      toNanos(i.CreatedAt),
		UpdatedAt:      toNanos(i.UpdatedAt),
		CredentialHash: i.CredentialHash,
	})
}

func decodeIdentity(raw []byte) (*repository.Identity, error) {
	var rec identityRecord
	if err := decode(raw, kindIdentity, &rec); err != nil {
		return nil, err
	}
	status := repository.IdentityStatus(rec.Status)
	if rec.ID == "" || !status.IsValid() {
		return nil, fmt.Errorf("%w: identity record missing id or status", storage.ErrCorrupt)
	}
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &repository.Identity{
		ID:             rec.ID,
		Attributes:     attrs,
		Status:         status,
		CreatedAt:      fromNanos(rec.CreatedAt),
		UpdatedAt:      fromNanos(rec.UpdatedAt),
		CredentialHash: rec.CredentialHash,
	}, nil
}

// ─── Session ───

func encodeSession(s *repository.Session) ([]byte, error) {
	rec := sessionRecord{
		ID:          s.ID,
		IdentityID:  s.IdentityID,
		KID:         s.KID,
		Fingerprint: s.TokenFingerprint,
		IssuedAt:    toNanos(s.IssuedAt),
		ExpiresAt:   toNanos(s.ExpiresAt),
		Revoked:     s.Revoked,
	}
	if s.RevokedAt != nil {
		rec.RevokedAt = toNanos(*s.RevokedAt)
	}
	return encode(kindSession, rec)
}

func decodeSession(raw []byte) (*repository.Session, error) {
	var rec sessionRecord
	if err := decode(raw, kindSession, &rec); err != nil {
		return nil, err
	}
	if rec.ID == "" || rec.IdentityID == "" || rec.ExpiresAt == 0 {
		return nil, fmt.Errorf("%w: session record missing fields", storage.ErrCorrupt)
	}
	s := &repository.Session{
		ID:               rec.ID,
		IdentityID:       rec.IdentityID,
		KID:              rec.KID,
		TokenFingerprint: rec.Fingerprint,
		IssuedAt:         fromNanos(rec.IssuedAt),
		ExpiresAt:        fromNanos(rec.ExpiresAt),
		Revoked:          rec.Revoked,
	}
	if rec.RevokedAt != 0 {
		at := fromNanos(rec.RevokedAt)
		s.RevokedAt = &at
	}
	return s, nil
}

// ─── Index ───

func encodeIndex(members []string) ([]byte, error) {
	return encode(kindIndex, indexRecord{Members: members})
}

func decodeIndex(raw []byte) ([]string, error) {
	var rec indexRecord
	if err := decode(raw, kindIndex, &rec); err != nil {
		return nil, err
	}
	return rec.Members, nil
}
