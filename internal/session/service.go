package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/solbridge-labs/relay/internal/archive"
	"github.com/solbridge-labs/relay/internal/ids"
)

// Service fabricates the handshake/prove/submit artifacts on top of a Store.
type Service struct {
	store      Store
	archive    archive.Store
	sessionTTL time.Duration
	now        func() time.Time
	log        *slog.Logger

	explorerTxPrefix string
}

type ServiceConfig struct {
	SessionTTL time.Duration

	// ExplorerTxPrefix shapes the fabricated explorer URL on submissions.
	ExplorerTxPrefix string

	// Archive, when set, receives a JSON record of every accepted
	// submission. Archive failures are logged, never surfaced.
	Archive archive.Store

	Now    func() time.Time
	Logger *slog.Logger
}

func NewService(store Store, cfg ServiceConfig) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:            store,
		archive:          cfg.Archive,
		sessionTTL:       cfg.SessionTTL,
		now:              cfg.Now,
		log:              cfg.Logger,
		explorerTxPrefix: cfg.ExplorerTxPrefix,
	}, nil
}

// SessionTTL reports the handshake TTL in whole seconds, as returned to
// clients.
func (s *Service) SessionTTL() int {
	return int(s.sessionTTL / time.Second)
}

// CreateSession opens a handshake: a fresh session id and a placeholder
// merkle root, stored with the creation timestamp.
func (s *Service) CreateSession(ctx context.Context) (Session, error) {
	id, err := ids.NewSessionID()
	if err != nil {
		return Session{}, err
	}
	root, err := ids.FakeHash32()
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:         id,
		MerkleRoot: root,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.PutSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Prove requires a live session and fabricates a proof bundle bound to the
// submitted commitment. The proof and nullifier are random byte strings.
func (s *Service) Prove(ctx context.Context, sessionID, publicKey string, intent Intent) (ProofBundle, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return ProofBundle{}, err
	}

	salt, err := ids.NewSalt()
	if err != nil {
		return ProofBundle{}, err
	}
	proof, err := ids.FakeProof(128)
	if err != nil {
		return ProofBundle{}, err
	}
	nullifier, err := ids.FakeHash32()
	if err != nil {
		return ProofBundle{}, err
	}

	bundle := ProofBundle{
		ID:        ids.ProofID(intent.Commitment, salt),
		SessionID: sessionID,
		PublicKey: publicKey,
		Intent:    intent,
		Proof:     proof,
		Nullifier: nullifier,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.PutProof(ctx, bundle); err != nil {
		return ProofBundle{}, err
	}
	return bundle, nil
}

// Submit requires a live proof bundle and acknowledges it with a fabricated
// transaction hash. Nothing is broadcast anywhere.
func (s *Service) Submit(ctx context.Context, proofID, network, mode string) (Receipt, error) {
	bundle, err := s.store.GetProof(ctx, proofID)
	if err != nil {
		return Receipt{}, err
	}

	txHash, err := ids.FakeHash32()
	if err != nil {
		return Receipt{}, err
	}
	receipt := Receipt{
		ProofID: proofID,
		TxHash:  txHash,
		Network: network,
		Mode:    mode,
		Bundle:  bundle,
	}
	if s.explorerTxPrefix != "" {
		receipt.ExplorerURL = s.explorerTxPrefix + txHash
	}

	s.archiveReceipt(ctx, receipt)
	return receipt, nil
}

func (s *Service) archiveReceipt(ctx context.Context, r Receipt) {
	if s.archive == nil {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		s.log.Warn("encode submission archive record", "proofId", r.ProofID, "err", err)
		return
	}
	key := fmt.Sprintf("submissions/%s/%s.json", s.now().UTC().Format("2006-01-02"), r.ProofID)
	if err := s.archive.Put(ctx, key, raw, archive.PutOptions{ContentType: "application/json"}); err != nil {
		s.log.Warn("archive submission", "proofId", r.ProofID, "err", err)
	}
}
