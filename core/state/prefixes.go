package state

import (
	"encoding/binary"
)

var (
	accountPrefix        = []byte("account/")
	escrowListingPrefix  = []byte("escrow/listing/")
	escrowCommentsPrefix = []byte("escrow/comments/")
	escrowVaultPrefix    = []byte("escrow/vault/")
	deedTokenPrefix      = []byte("deed/token/")
	deedOperatorPrefix   = []byte("deed/operator/")
	deedLastIDKeyBytes   = []byte("deed/last-id")
)

func prefixedKey(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

func idKey(prefix []byte, id uint64) []byte {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], id)
	return prefixedKey(prefix, raw[:])
}

// AccountKey returns the storage key for an account record.
func AccountKey(addr []byte) []byte { return prefixedKey(accountPrefix, addr) }

// EscrowListingKey returns the storage key for an escrow listing.
func EscrowListingKey(id uint64) []byte { return idKey(escrowListingPrefix, id) }

// EscrowCommentsKey returns the storage key for an asset's inspection comments.
func EscrowCommentsKey(id uint64) []byte { return idKey(escrowCommentsPrefix, id) }

// EscrowVaultKey returns the storage key for the value custodied per asset.
func EscrowVaultKey(id uint64) []byte { return idKey(escrowVaultPrefix, id) }

// DeedTokenKey returns the storage key for a deed record.
func DeedTokenKey(id uint64) []byte { return idKey(deedTokenPrefix, id) }

// DeedOperatorKey returns the storage key for an owner/operator grant.
func DeedOperatorKey(owner, operator [20]byte) []byte {
	suffix := make([]byte, 0, 40)
	suffix = append(suffix, owner[:]...)
	suffix = append(suffix, operator[:]...)
	return prefixedKey(deedOperatorPrefix, suffix)
}

// DeedLastIDKey returns the storage key of the deed id counter.
func DeedLastIDKey() []byte { return append([]byte(nil), deedLastIDKeyBytes...) }
