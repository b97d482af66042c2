package signer

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/keeperlabs/keeper/internal/solana"
)

// ---------------------------------------------------------------------------
// Signing capability. The key material is parsed fresh for every signing
// operation and held only for the duration of that call; it is never logged,
// serialized, or stored in a long-lived field.
// ---------------------------------------------------------------------------

var memoProgram = solanago.MustPublicKeyFromBase58(string(solana.MemoProgram))

// KeySource yields the base58 signing-key material. Typically
// config.Config.RequireSigningKey.
type KeySource func() (string, error)

// Signer signs transactions for the treasury wallet.
type Signer struct {
	keySource KeySource
}

// New creates a signer backed by a key source.
func New(keySource KeySource) *Signer {
	return &Signer{keySource: keySource}
}

// keypair parses the key material. Callers must let the returned value go
// out of scope when the operation finishes.
func (s *Signer) keypair() (solanago.PrivateKey, error) {
	material, err := s.keySource()
	if err != nil {
		return nil, err
	}
	key, err := solanago.PrivateKeyFromBase58(material)
	if err != nil {
		return nil, fmt.Errorf("signer: parse key: invalid base58 material")
	}
	return key, nil
}

// PublicKey derives the wallet public key from the signing key.
func (s *Signer) PublicKey() (solana.Pubkey, error) {
	key, err := s.keypair()
	if err != nil {
		return "", err
	}
	return solana.Pubkey(key.PublicKey().String()), nil
}

// SignEncodedTransaction decodes a base64 transaction (as returned by the
// swap aggregator), attaches the wallet's signature, and re-encodes it.
func (s *Signer) SignEncodedTransaction(txBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("signer: decode transaction: %w", err)
	}

	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("signer: parse transaction: %w", err)
	}

	key, err := s.keypair()
	if err != nil {
		return "", err
	}

	if _, err := tx.Sign(func(pub solanago.PublicKey) *solanago.PrivateKey {
		if pub.Equals(key.PublicKey()) {
			return &key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("signer: sign transaction: %w", err)
	}

	signed, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("signer: encode transaction: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signed), nil
}

// BuildTransferWithMemo builds and signs a transaction carrying a native
// transfer and a memo instruction, binding the payment to its purpose
// atomically on chain. The blockhash must be freshly fetched by the caller.
func (s *Signer) BuildTransferWithMemo(recipient solana.Pubkey, lamports uint64, memoText, blockhash string) (string, error) {
	recipientKey, err := solanago.PublicKeyFromBase58(string(recipient))
	if err != nil {
		return "", fmt.Errorf("signer: parse recipient: %w", err)
	}

	hash, err := solanago.HashFromBase58(blockhash)
	if err != nil {
		return "", fmt.Errorf("signer: parse blockhash: %w", err)
	}

	key, err := s.keypair()
	if err != nil {
		return "", err
	}
	payer := key.PublicKey()

	transferIx := system.NewTransferInstruction(lamports, payer, recipientKey).Build()
	memoIx := solanago.NewInstruction(
		memoProgram,
		solanago.AccountMetaSlice{solanago.NewAccountMeta(payer, false, true)},
		[]byte(memoText),
	)

	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{transferIx, memoIx},
		hash,
		solanago.TransactionPayer(payer),
	)
	if err != nil {
		return "", fmt.Errorf("signer: build transaction: %w", err)
	}

	if _, err := tx.Sign(func(pub solanago.PublicKey) *solanago.PrivateKey {
		if pub.Equals(payer) {
			return &key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("signer: sign transaction: %w", err)
	}

	signed, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("signer: encode transaction: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signed), nil
}
