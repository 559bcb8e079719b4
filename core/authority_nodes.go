package core

// Proof-of-Authority block authorship.
//
// The validator set is fixed at startup from configuration; there is no
// admission voting, staking, or role hierarchy — any listed validator may
// author a block. Leader election and a PBFT-style voting path are out of
// scope for this core; both are left to a boundary layer if ever needed.

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/sirupsen/logrus"
)

// AuthoritySet is the fixed set of PoA validators known to this node.
type AuthoritySet struct {
	logger     *logrus.Logger
	validators map[string]Validator
}

// NewAuthoritySet builds a fixed validator set from the given list.
func NewAuthoritySet(logger *logrus.Logger, validators []Validator) *AuthoritySet {
	m := make(map[string]Validator, len(validators))
	for _, v := range validators {
		m[v.ID] = v
	}
	return &AuthoritySet{logger: logger, validators: m}
}

// IsValidator reports whether id is a member of the fixed validator set.
func (as *AuthoritySet) IsValidator(id string) bool {
	_, ok := as.validators[id]
	return ok
}

// PubKeyOf returns a validator's compressed public key.
func (as *AuthoritySet) PubKeyOf(id string) ([]byte, bool) {
	v, ok := as.validators[id]
	if !ok {
		return nil, false
	}
	return v.PubKey, true
}

// AuthorBlock signs b on behalf of validator id using priv, setting
// b.ValidatorID and b.ValidatorSignature. The caller must have already set
// every other field of b, including Hash.
func (as *AuthoritySet) AuthorBlock(id string, priv *btcec.PrivateKey, b *Block) error {
	if !as.IsValidator(id) {
		return ErrNotAValidator
	}
	pub, _ := as.PubKeyOf(id)
	if string(pub) != string(priv.PubKey().SerializeCompressed()) {
		return errors.New("authority: key does not match validator id")
	}
	sig, err := SignBlock(priv, b)
	if err != nil {
		return err
	}
	b.ValidatorID = id
	b.ValidatorSignature = sig
	if as.logger != nil {
		as.logger.WithFields(logrus.Fields{
			"validator": id,
			"height":    b.Index,
		}).Info("authority: block signed")
	}
	return nil
}

// VerifyBlockAuthorship checks that b was authored by a validator in the
// fixed set and that its signature verifies.
func (as *AuthoritySet) VerifyBlockAuthorship(b *Block) error {
	if !as.IsValidator(b.ValidatorID) {
		return ErrNotAValidator
	}
	pub, _ := as.PubKeyOf(b.ValidatorID)
	if !VerifyBlockSignature(pub, b) {
		return ErrBadBlockSignature
	}
	return nil
}

// Validators returns a copy of the fixed validator list.
func (as *AuthoritySet) Validators() []Validator {
	out := make([]Validator, 0, len(as.validators))
	for _, v := range as.validators {
		out = append(out, v)
	}
	return out
}
