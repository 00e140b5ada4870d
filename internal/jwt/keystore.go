package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

var (
	ErrNoActiveKey   = errors.New("no_active_signing_key")
	ErrKeyNotFound   = errors.New("kid_not_found")
	ErrKeyRetired    = errors.New("kid_retired")
	ErrKeyGeneration = errors.New("key_generation_failed")
)

const algEdDSA = "EdDSA"

// KeystoreOptions configura el Keystore.
type KeystoreOptions struct {
	// Grace: cuánto sigue verificando una clave después de ser reemplazada.
	Grace time.Duration
	// Now: reloj inyectable (tests). Default time.Now.
	Now func() time.Time
	// Rand: fuente de entropía. Default crypto/rand.
	Rand io.Reader
}

// keySnapshot es inmutable una vez publicado.
type keySnapshot struct {
	active   *repository.SigningKey
	retiring []*repository.SigningKey // más reciente primero
	byKID    map[string]*repository.SigningKey
	jwks     []byte
}

// Keystore mantiene las claves de firma del proceso.
//
// Lecturas (Active, PublicKey, Verify) cargan un snapshot atómico y nunca
// bloquean. Rotate construye un snapshot nuevo y lo publica con un Store; el
// mutex sólo serializa rotaciones concurrentes entre sí.
type Keystore struct {
	snap     atomic.Pointer[keySnapshot]
	rotateMu sync.Mutex

	grace time.Duration
	now   func() time.Time
	rand  io.Reader
}

// NewKeystore genera la clave inicial. Un error acá es fatal para el proceso:
// sin clave no se puede emitir nada.
func NewKeystore(opts KeystoreOptions) (*Keystore, error) {
	k := &Keystore{
		grace: opts.Grace,
		now:   opts.Now,
		rand:  opts.Rand,
	}
	if k.now == nil {
		k.now = time.Now
	}
	if k.rand == nil {
		k.rand = rand.Reader
	}
	if _, err := k.Rotate(); err != nil {
		return nil, err
	}
	return k, nil
}

// Grace devuelve el período de gracia configurado.
func (k *Keystore) Grace() time.Duration { return k.grace }

// Active devuelve la clave activa para firmar.
func (k *Keystore) Active() (kid string, priv ed25519.PrivateKey, err error) {
	s := k.snap.Load()
	if s == nil || s.active == nil {
		return "", nil, ErrNoActiveKey
	}
	return s.active.ID, s.active.PrivateKey, nil
}

// PublicKey devuelve la pública de kid si todavía acepta firmas.
// Una clave retirada cuyo grace venció retorna ErrKeyRetired aunque no se
// haya podado aún.
func (k *Keystore) PublicKey(kid string) (ed25519.PublicKey, error) {
	s := k.snap.Load()
	if s == nil {
		return nil, ErrNoActiveKey
	}
	key, ok := s.byKID[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if !key.AcceptsAt(k.now(), k.grace) {
		return nil, ErrKeyRetired
	}
	return key.PublicKey, nil
}

// Verify chequea una firma Ed25519 contra el conjunto de claves aceptadas.
func (k *Keystore) Verify(kid string, signature, payload []byte) bool {
	pub, err := k.PublicKey(kid)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, payload, signature)
}

// Rotate genera un par nuevo, lo activa y pasa la activa anterior a retiring.
// Poda las retiring cuyo grace ya venció. Si la generación falla el snapshot
// previo queda intacto.
func (k *Keystore) Rotate() (string, error) {
	k.rotateMu.Lock()
	defer k.rotateMu.Unlock()

	now := k.now()
	pub, priv, err := GenerateEd25519(k.rand)
	if err != nil {
		return "", err
	}
	kid, err := newKID(k.rand, now)
	if err != nil {
		return "", err
	}

	next := &keySnapshot{
		active: &repository.SigningKey{
			ID:          kid,
			Algorithm:   algEdDSA,
			PrivateKey:  priv,
			PublicKey:   pub,
			ActivatedAt: now,
		},
		byKID: make(map[string]*repository.SigningKey),
	}

	if prev := k.snap.Load(); prev != nil {
		if prev.active != nil {
			// Copia: el snapshot anterior sigue siendo leído por otros.
			demoted := *prev.active
			retiredAt := now
			demoted.RetiredAt = &retiredAt
			next.retiring = append(next.retiring, &demoted)
		}
		for _, r := range prev.retiring {
			if r.AcceptsAt(now, k.grace) {
				next.retiring = append(next.retiring, r)
			}
		}
	}

	next.byKID[next.active.ID] = next.active
	for _, r := range next.retiring {
		next.byKID[r.ID] = r
	}
	next.jwks = buildJWKS(append([]*repository.SigningKey{next.active}, next.retiring...))

	k.snap.Store(next)
	return kid, nil
}

// Keys lista las claves del snapshot actual (sin material privado).
func (k *Keystore) Keys() []repository.KeyInfo {
	s := k.snap.Load()
	if s == nil {
		return nil
	}
	now := k.now()
	out := make([]repository.KeyInfo, 0, 1+len(s.retiring))
	if s.active != nil {
		out = append(out, keyInfo(s.active, k.grace))
	}
	for _, r := range s.retiring {
		if !r.AcceptsAt(now, k.grace) {
			continue
		}
		out = append(out, keyInfo(r, k.grace))
	}
	return out
}

func keyInfo(key *repository.SigningKey, grace time.Duration) repository.KeyInfo {
	ki := repository.KeyInfo{
		KID:         key.ID,
		Algorithm:   key.Algorithm,
		Status:      key.Status(),
		ActivatedAt: key.ActivatedAt,
		RetiredAt:   key.RetiredAt,
	}
	if key.RetiredAt != nil {
		until := key.RetiredAt.Add(grace)
		ki.AcceptUntil = &until
	}
	return ki
}

// JWKSJSON devuelve el JWKS público del snapshot. Se arma una vez por
// rotación, así que puede incluir claves vencidas hasta la próxima.
func (k *Keystore) JWKSJSON() []byte {
	s := k.snap.Load()
	if s == nil {
		return []byte(`{"keys":[]}`)
	}
	return s.jwks
}
